//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation.

package reactor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/unixbridge/api"
)

// ErrClosed is returned by operations on a closed reactor.
var ErrClosed = errors.New("reactor: closed")

// Reactor implements api.Reactor using level-triggered epoll.
type Reactor struct {
	epfd   int
	wakefd int // eventfd used to interrupt epoll_wait

	mu       sync.RWMutex
	handlers map[int]api.EventHandler

	closed atomic.Bool
	log    *slog.Logger
}

// New creates an epoll instance and its wake descriptor.
func New(opts ...Option) (*Reactor, error) {
	o := buildOptions(opts)
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wake: %w", err)
	}
	return &Reactor{
		epfd:     epfd,
		wakefd:   wakefd,
		handlers: make(map[int]api.EventHandler),
		log:      o.logger,
	}, nil
}

// Register adds fd to the watch list. Error and hangup are always reported.
func (r *Reactor) Register(fd int, events api.EventType, h api.EventHandler) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if h == nil {
		return fmt.Errorf("register fd %d: %w", fd, api.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	r.handlers[fd] = h
	return nil
}

// Modify replaces the interest set of a registered fd.
func (r *Reactor) Modify(fd int, events api.EventType) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Unregister removes fd from the watch list. The handler is dropped even
// when the kernel already forgot the descriptor.
func (r *Reactor) Unregister(fd int) error {
	r.mu.Lock()
	_, ok := r.handlers[fd]
	delete(r.handlers, fd)
	r.mu.Unlock()
	if !ok || r.closed.Load() {
		return nil
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Poll blocks up to timeoutMs (negative blocks indefinitely) and dispatches
// ready events. It returns the number of handlers invoked.
func (r *Reactor) Poll(timeoutMs int) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	var events [maxEvents]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	handled := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == r.wakefd {
			r.drainWake()
			continue
		}
		r.mu.RLock()
		h, ok := r.handlers[fd]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		r.dispatch(h, fd, fromEpoll(events[i].Events))
		handled++
	}
	return handled, nil
}

// Run polls until ctx is cancelled or the reactor is closed.
func (r *Reactor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.Wake)
	defer stop()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := r.Poll(-1); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Wake interrupts a blocked Poll.
func (r *Reactor) Wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(r.wakefd, buf[:])
}

// Close releases the epoll and wake descriptors. Registered descriptors are
// not closed. Idempotent.
func (r *Reactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.Wake()
	r.mu.Lock()
	r.handlers = make(map[int]api.EventHandler)
	r.mu.Unlock()
	return errors.Join(unix.Close(r.epfd), unix.Close(r.wakefd))
}

// Len returns the number of registered descriptors.
func (r *Reactor) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *Reactor) dispatch(h api.EventHandler, fd int, ev api.EventType) {
	// Keep the loop alive when a handler panics.
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panic", "fd", fd, "events", ev.String(), "panic", p)
		}
	}()
	h(fd, ev)
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakefd, buf[:])
}

func toEpoll(events api.EventType) uint32 {
	var ev uint32
	if events.Has(api.EventRead) {
		ev |= unix.EPOLLIN
	}
	if events.Has(api.EventPriority) {
		ev |= unix.EPOLLPRI
	}
	if events.Has(api.EventWrite) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpoll(ev uint32) api.EventType {
	var out api.EventType
	if ev&unix.EPOLLIN != 0 {
		out |= api.EventRead
	}
	if ev&unix.EPOLLPRI != 0 {
		out |= api.EventPriority
	}
	if ev&unix.EPOLLOUT != 0 {
		out |= api.EventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		out |= api.EventError
	}
	if ev&unix.EPOLLHUP != 0 {
		out |= api.EventHangup
	}
	return out
}
