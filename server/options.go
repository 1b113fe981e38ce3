// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/momentics/unixbridge/control"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithErrorHandler receives element-level errors: failed accepts and
// terminal listener conditions.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Server) {
		s.onError = fn
	}
}

// WithReportLimit throttles non-fatal error reports to one per interval
// with the given burst. Terminal errors are never throttled.
func WithReportLimit(every time.Duration, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// WithClock sets the clock driving the accept retry delay.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}
