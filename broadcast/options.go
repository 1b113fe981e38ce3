// File: broadcast/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package broadcast

import (
	"log/slog"

	"github.com/momentics/unixbridge/control"
)

// DefaultMaxQueued is the per-client backlog, in chunks, tolerated before the
// client is dropped.
const DefaultMaxQueued = 256

// Option customizes a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the broadcaster logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics records evictions and broadcast volume on m.
func WithMetrics(m *control.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// WithMaxQueued bounds the number of chunks queued per client. Values below
// one are ignored.
func WithMaxQueued(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.maxQueued = n
		}
	}
}
