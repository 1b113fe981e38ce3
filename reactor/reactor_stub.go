//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"context"
	"errors"

	"github.com/momentics/unixbridge/api"
)

// ErrClosed is returned by operations on a closed reactor.
var ErrClosed = errors.New("reactor: closed")

// Reactor is unavailable on this platform.
type Reactor struct{}

// New returns an error for unsupported platforms.
func New(opts ...Option) (*Reactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}

func (r *Reactor) Register(int, api.EventType, api.EventHandler) error { return api.ErrNotSupported }
func (r *Reactor) Modify(int, api.EventType) error                     { return api.ErrNotSupported }
func (r *Reactor) Unregister(int) error                                { return api.ErrNotSupported }
func (r *Reactor) Poll(int) (int, error)                               { return 0, api.ErrNotSupported }
func (r *Reactor) Run(context.Context) error                           { return api.ErrNotSupported }
func (r *Reactor) Wake()                                               {}
func (r *Reactor) Close() error                                        { return nil }
func (r *Reactor) Len() int                                            { return 0 }
