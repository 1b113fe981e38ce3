// Package fake
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the reactor and fan-out
// contracts.

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/unixbridge/api"
)

// Reactor records registrations and lets tests fire events by hand.
type Reactor struct {
	mu       sync.Mutex
	handlers map[int]api.EventHandler
	interest map[int]api.EventType

	// RegisterErr, when set, is returned by Register.
	RegisterErr error
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor creates an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{
		handlers: make(map[int]api.EventHandler),
		interest: make(map[int]api.EventType),
	}
}

func (f *Reactor) Register(fd int, events api.EventType, h api.EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	if _, ok := f.handlers[fd]; ok {
		return fmt.Errorf("fd %d: %w", fd, api.ErrInvalidArgument)
	}
	f.handlers[fd] = h
	f.interest[fd] = events
	return nil
}

func (f *Reactor) Modify(fd int, events api.EventType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[fd]; !ok {
		return fmt.Errorf("fd %d: %w", fd, api.ErrInvalidArgument)
	}
	f.interest[fd] = events
	return nil
}

func (f *Reactor) Unregister(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, fd)
	delete(f.interest, fd)
	return nil
}

// Fire invokes the handler registered for fd, reporting whether one existed.
func (f *Reactor) Fire(fd int, events api.EventType) bool {
	f.mu.Lock()
	h, ok := f.handlers[fd]
	f.mu.Unlock()
	if ok {
		h(fd, events)
	}
	return ok
}

// Registered reports whether fd is watched.
func (f *Reactor) Registered(fd int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[fd]
	return ok
}

// Interest returns the current interest set of fd.
func (f *Reactor) Interest(fd int) api.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interest[fd]
}

// Len returns the number of watched descriptors.
func (f *Reactor) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// FDs returns the watched descriptors.
func (f *Reactor) FDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.handlers))
	for fd := range f.handlers {
		out = append(out, fd)
	}
	return out
}
