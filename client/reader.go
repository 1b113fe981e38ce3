// File: client/reader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pull-based reader over a single Unix socket connection.

package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/internal/cancel"
	"github.com/momentics/unixbridge/internal/sock"
)

// Ensure compliance with api.ByteSource interface.
var _ api.ByteSource = (*Reader)(nil)

var errSocketCondition = errors.New("socket in error state")

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateConnected
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Reader delivers the byte stream of one connection, one chunk per Pull.
// Pull calls must be sequential.
type Reader struct {
	pullMu sync.Mutex // held for the whole of Pull and Stop

	mu    sync.Mutex
	state state
	path  string
	fd    int

	tok      *cancel.Token
	closeTok sync.Once

	log     *slog.Logger
	metrics *control.Metrics
}

// New creates an idle Reader with its own cancellation token.
func New(opts ...Option) (*Reader, error) {
	tok, err := cancel.New()
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	r := &Reader{
		fd:  -1,
		tok: tok,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "client")
	return r, nil
}

// Start connects to the listener at path. A connect interrupted by Unlock
// returns api.ErrCancelled; any other failure is an open error. On failure
// the reader stays idle. The connect runs without holding the state lock,
// so Connected and Path answer while it retries.
func (r *Reader) Start(path string) error {
	r.mu.Lock()
	if r.state != stateIdle {
		st := r.state
		r.mu.Unlock()
		return fmt.Errorf("start %q: already %s: %w", path, st, api.ErrNotReady)
	}
	if path == "" {
		r.mu.Unlock()
		return api.NewOpenError("connect", path, api.ErrInvalidArgument)
	}
	r.state = stateConnecting
	r.mu.Unlock()

	log := r.log.With("path", path)
	log.Debug("opening socket")
	fd, err := sock.Connect(path, r.tok)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateConnecting {
		// Stop ran while connecting.
		if err == nil {
			if cerr := sock.Close(fd); cerr != nil {
				log.Error("failed to close socket", "error", cerr)
			}
		}
		return fmt.Errorf("start %q: stopped while connecting: %w", path, api.ErrCancelled)
	}
	if err != nil {
		if errors.Is(err, api.ErrCancelled) {
			log.Debug("cancelled connecting")
		} else {
			log.Error("failed to connect", "error", err)
		}
		r.stopLocked()
		return err
	}

	r.fd = fd
	r.path = path
	r.state = stateConnected
	log.Debug("connected", "fd", fd)
	return nil
}

// Pull returns the next chunk. It returns api.ErrNotReady when not
// connected, api.ErrCancelled when the wait was interrupted, and
// api.ErrEndOfStream once the peer has shut down its write side.
func (r *Reader) Pull() (api.Chunk, error) {
	r.pullMu.Lock()
	defer r.pullMu.Unlock()

	c, err := r.pull()
	r.metrics.Pulled(api.FlowFromError(err), len(c))
	return c, err
}

func (r *Reader) pull() (api.Chunk, error) {
	r.mu.Lock()
	st, fd, path := r.state, r.fd, r.path
	r.mu.Unlock()
	if st != stateConnected {
		return nil, api.ErrNotReady
	}

	for {
		avail, err := sock.Available(fd)
		if err != nil {
			return nil, api.NewIOError("ioctl", path, err)
		}

		if avail == 0 {
			r.log.Debug("no data available, waiting")
			ev, err := sock.Wait(fd, api.EventRead|api.EventPriority, r.tok)
			if err != nil {
				if errors.Is(err, api.ErrCancelled) {
					r.log.Debug("cancelled waiting for data")
					return nil, err
				}
				return nil, api.NewIOError("poll", path, err)
			}
			if ev.Has(api.EventError) {
				return nil, api.NewIOError("poll", path, errSocketCondition)
			}
			// A hangup may still leave unread data queued; only an empty
			// queue ends the stream.
			if avail, err = sock.Available(fd); err != nil {
				return nil, api.NewIOError("ioctl", path, err)
			}
			if avail <= 0 {
				r.log.Debug("connection closed", "events", ev.String())
				return nil, api.ErrEndOfStream
			}
		}

		buf := make([]byte, min(avail, api.MaxChunkSize))
		n, err := sock.Read(fd, buf)
		switch {
		case err != nil && sock.IsTemporary(err):
			continue
		case err != nil:
			if r.tok.IsCancelled() {
				return nil, api.ErrCancelled
			}
			return nil, api.NewIOError("read", path, err)
		case n == 0:
			r.log.Debug("connection closed")
			return nil, api.ErrEndOfStream
		}
		return api.Chunk(buf[:n]), nil
	}
}

// Unlock signals the cancellation token, interrupting a blocked Pull or
// Start. The connection stays open.
func (r *Reader) Unlock() {
	r.log.Debug("set to flushing")
	r.tok.Cancel()
}

// UnlockStop clears the cancellation token.
func (r *Reader) UnlockStop() {
	r.log.Debug("unset flushing")
	r.tok.Reset()
}

// Stop closes the connection and returns to idle. Idempotent. It waits for
// an in-flight Pull; call Unlock first if one may be blocked.
func (r *Reader) Stop() error {
	r.pullMu.Lock()
	defer r.pullMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	return nil
}

func (r *Reader) stopLocked() {
	if r.fd >= 0 {
		r.log.Debug("closing socket", "fd", r.fd)
		if err := sock.Close(r.fd); err != nil {
			r.log.Error("failed to close socket", "error", err)
		}
		r.fd = -1
	}
	r.state = stateIdle
}

// Close stops the reader and releases its cancellation token.
func (r *Reader) Close() error {
	_ = r.Stop()
	var err error
	r.closeTok.Do(func() { err = r.tok.Close() })
	return err
}

// Connected reports whether Start succeeded and Stop has not been called.
func (r *Reader) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateConnected
}

// Path returns the path of the current connection.
func (r *Reader) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}
