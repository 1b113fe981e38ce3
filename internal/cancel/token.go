// File: internal/cancel/token.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cancel

import (
	"errors"
	"sync"

	"github.com/momentics/unixbridge/api"
)

// ErrClosed is returned by Err once the token has been closed.
var ErrClosed = errors.New("cancel: token closed")

// Token is a thread-safe cancellation flag with edge-triggered reset.
// Once signalled, every in-flight and subsequent wait observes cancellation
// until Reset is called.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	closed    bool
	fd        int // readable while cancelled
}

// New allocates a token and its wake descriptor.
func New() (*Token, error) {
	fd, err := newWakeFD()
	if err != nil {
		return nil, err
	}
	return &Token{fd: fd}, nil
}

// Cancel signals the token. Repeated calls are no-ops.
func (t *Token) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.closed {
		return
	}
	t.cancelled = true
	signalWakeFD(t.fd)
}

// Reset clears the token so that blocking calls wait normally again.
func (t *Token) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelled || t.closed {
		return
	}
	t.cancelled = false
	drainWakeFD(t.fd)
}

// IsCancelled reports the current state.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Err returns api.ErrCancelled while the token is signalled, ErrClosed
// after Close, nil otherwise.
func (t *Token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		return ErrClosed
	case t.cancelled:
		return api.ErrCancelled
	}
	return nil
}

// FD returns the wake descriptor, or -1 once the token is closed. It polls
// readable while cancelled. The descriptor stays owned by the token.
func (t *Token) FD() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return -1
	}
	return t.fd
}

// Close releases the wake descriptor. The token must not be used afterwards.
func (t *Token) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return closeWakeFD(t.fd)
}
