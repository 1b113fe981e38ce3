// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"

	"github.com/momentics/unixbridge/api"
)

// FanOut records the handles it is given. Remove reports the handle back
// through OnRemoved, like a real fan-out dropping a client.
type FanOut struct {
	mu      sync.Mutex
	handles map[int]api.Handle
	added   []api.Handle

	OnRemoved func(api.Handle)
	AddErr    error
}

var _ api.FanOut = (*FanOut)(nil)

// NewFanOut creates an empty fake fan-out.
func NewFanOut() *FanOut {
	return &FanOut{handles: make(map[int]api.Handle)}
}

func (f *FanOut) Add(h api.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		return f.AddErr
	}
	f.handles[h.FD] = h
	f.added = append(f.added, h)
	return nil
}

func (f *FanOut) Remove(h api.Handle) bool {
	f.mu.Lock()
	_, ok := f.handles[h.FD]
	delete(f.handles, h.FD)
	cb := f.OnRemoved
	f.mu.Unlock()
	if ok && cb != nil {
		cb(h)
	}
	return ok
}

// Handles returns the currently held handles.
func (f *FanOut) Handles() []api.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Handle, 0, len(f.handles))
	for _, h := range f.handles {
		out = append(out, h)
	}
	return out
}

// Added returns every handle ever added, in order.
func (f *FanOut) Added() []api.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Handle(nil), f.added...)
}
