// File: element/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package element

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/broadcast"
	"github.com/momentics/unixbridge/control"
)

// DefaultStatsInterval is how often a running ServerSink reports its
// client count.
const DefaultStatsInterval = 10 * time.Second

// Option customizes an element.
type Option func(*settings)

type settings struct {
	log           *slog.Logger
	metrics       *control.Metrics
	probes        api.Debug
	bus           *Bus
	clock         clockwork.Clock
	statsInterval time.Duration
	maxQueued     int
}

func buildSettings(name string, opts []Option) settings {
	s := settings{
		log:           slog.Default(),
		clock:         clockwork.NewRealClock(),
		statsInterval: DefaultStatsInterval,
		maxQueued:     broadcast.DefaultMaxQueued,
	}
	for _, o := range opts {
		o(&s)
	}
	if s.bus == nil {
		s.bus = NewBus(DefaultBusSize, s.clock, s.log)
	}
	s.log = s.log.With("element", name)
	return s
}

// WithLogger sets the element logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics wires the element's components to m.
func WithMetrics(m *control.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithProbes registers the element's state probes on dp.
func WithProbes(dp api.Debug) Option {
	return func(s *settings) { s.probes = dp }
}

// WithBus sets the bus that receives element messages.
func WithBus(b *Bus) Option {
	return func(s *settings) { s.bus = b }
}

// WithClock sets the clock used for stats and message timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStatsInterval sets the stats period of a ServerSink. Zero disables
// stats.
func WithStatsInterval(d time.Duration) Option {
	return func(s *settings) { s.statsInterval = d }
}

// WithMaxQueued bounds the per-client backlog of a ServerSink.
func WithMaxQueued(n int) Option {
	return func(s *settings) { s.maxQueued = n }
}
