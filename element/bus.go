// File: element/bus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Element message bus.

package element

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// MessageType classifies bus messages.
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageWarning
	MessageError
	MessageEOS
)

func (t MessageType) String() string {
	switch t {
	case MessageInfo:
		return "info"
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	case MessageEOS:
		return "eos"
	default:
		return "unknown"
	}
}

// Message is one notification posted by an element.
type Message struct {
	Type   MessageType
	Source string
	Text   string
	Err    error
	Time   time.Time
}

// DefaultBusSize is the capacity of a bus created with size <= 0.
const DefaultBusSize = 64

// Bus is a bounded, non-blocking message channel. Posting never blocks the
// element; messages that do not fit are counted and dropped.
type Bus struct {
	ch      chan Message
	clock   clockwork.Clock
	log     *slog.Logger
	dropped atomic.Int64
}

// NewBus creates a bus. A nil clock means the real clock; a nil logger
// means slog.Default().
func NewBus(size int, clock clockwork.Clock, log *slog.Logger) *Bus {
	if size <= 0 {
		size = DefaultBusSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		ch:    make(chan Message, size),
		clock: clock,
		log:   log.With("component", "bus"),
	}
}

// Post logs m and queues it for readers of Messages.
func (b *Bus) Post(m Message) {
	if m.Time.IsZero() {
		m.Time = b.clock.Now()
	}
	attrs := []any{"source", m.Source, "type", m.Type.String()}
	if m.Err != nil {
		attrs = append(attrs, "error", m.Err)
	}
	switch m.Type {
	case MessageError:
		b.log.Error(m.Text, attrs...)
	case MessageWarning:
		b.log.Warn(m.Text, attrs...)
	default:
		b.log.Debug(m.Text, attrs...)
	}

	select {
	case b.ch <- m:
	default:
		b.dropped.Add(1)
	}
}

// Messages returns the receive side of the bus.
func (b *Bus) Messages() <-chan Message {
	return b.ch
}

// Dropped returns the number of messages lost to a full bus.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
