// File: client/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"log/slog"

	"github.com/momentics/unixbridge/control"
)

// Option customizes a Reader.
type Option func(*Reader)

// WithLogger sets the reader logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records pull outcomes on m.
func WithMetrics(m *control.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}
