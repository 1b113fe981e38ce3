// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral options and compile-time checks.

package reactor

import (
	"log/slog"

	"github.com/momentics/unixbridge/api"
)

// Ensure compliance with api.Reactor interface.
var _ api.Reactor = (*Reactor)(nil)

// maxEvents bounds the number of events dispatched per Poll.
const maxEvents = 128

// Option customizes a Reactor.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for handler panics and loop errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	o.logger = o.logger.With("component", "reactor")
	return o
}
