// File: internal/sockwait/sockwait.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package sockwait blocks until a Unix socket file appears on disk.
package sockwait

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/momentics/unixbridge/internal/sock"
)

// ErrTimeout is returned when the socket does not appear in time.
var ErrTimeout = errors.New("sockwait: timed out waiting for socket")

var errWatcherClosed = errors.New("sockwait: watcher closed")

// Wait returns once path exists as a socket file. A timeout of zero waits
// until ctx is done.
func Wait(ctx context.Context, path string, timeout time.Duration) error {
	return WaitWithClock(ctx, clockwork.NewRealClock(), path, timeout)
}

// WaitWithClock is Wait with an explicit clock for the timeout.
func WaitWithClock(ctx context.Context, clock clockwork.Clock, path string, timeout time.Duration) error {
	if sock.IsSocket(path) {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sockwait: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("sockwait: watch %q: %w", filepath.Dir(path), err)
	}
	// The socket may have been created before the watch was in place.
	if sock.IsSocket(path) {
		return nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := clock.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.Chan()
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Has(fsnotify.Create) && sock.IsSocket(path) {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			return fmt.Errorf("sockwait: %w", err)
		case <-expired:
			return fmt.Errorf("%w: %s after %s", ErrTimeout, path, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
