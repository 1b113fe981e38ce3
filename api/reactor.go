// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for readiness-driven event reactors
// used to multiplex listening and accepted sockets.

package api

import "strings"

// EventType is a bitmask of readiness conditions on a descriptor.
type EventType uint32

const (
	EventRead EventType = 1 << iota
	EventWrite
	EventPriority
	EventError
	EventHangup
)

func (e EventType) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  EventType
		name string
	}{
		{EventRead, "in"},
		{EventWrite, "out"},
		{EventPriority, "pri"},
		{EventError, "err"},
		{EventHangup, "hup"},
	} {
		if e&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether any bit of mask is set.
func (e EventType) Has(mask EventType) bool { return e&mask != 0 }

// EventHandler is invoked on the reactor goroutine when fd becomes ready.
// Handlers must not block.
type EventHandler func(fd int, events EventType)

// Reactor is the registration surface of an event loop:
// "when this descriptor reports these conditions, invoke handler".
// Error and hangup conditions are always delivered.
type Reactor interface {
	Register(fd int, events EventType, h EventHandler) error
	Modify(fd int, events EventType) error
	Unregister(fd int) error
}
