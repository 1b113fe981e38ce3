// File: broadcast/broadcaster.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking fan-out of chunks to a set of client sockets.

package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/internal/sock"
)

// Removal reasons, used as the metrics label.
const (
	ReasonOverflow = "overflow"
	ReasonHangup   = "hangup"
	ReasonError    = "error"
	ReasonRemoved  = "removed"
)

var errPeerCondition = errors.New("error condition on client socket")

// Ensure compliance with api.FanOut interface.
var _ api.FanOut = (*Broadcaster)(nil)

type peer struct {
	h       api.Handle
	pending *queue.Queue // []byte chunks not yet started
	head    []byte       // unsent tail of the chunk in flight
	armed   bool         // write interest registered
}

func (p *peer) backlog() int {
	n := p.pending.Length()
	if len(p.head) > 0 {
		n++
	}
	return n
}

// Broadcaster writes every chunk to every registered client, preserving
// order per client.
type Broadcaster struct {
	mu        sync.Mutex
	clients   map[int]*peer
	reactor   api.Reactor
	onRemoved func(api.Handle)
	maxQueued int
	scratch   []byte

	log     *slog.Logger
	metrics *control.Metrics
}

// New creates a Broadcaster. When r is nil no readiness is watched: queued
// chunks are retried on the next Broadcast and hangups surface as write
// errors. onRemoved, if set, receives every handle the broadcaster drops.
func New(r api.Reactor, onRemoved func(api.Handle), opts ...Option) *Broadcaster {
	b := &Broadcaster{
		clients:   make(map[int]*peer),
		reactor:   r,
		onRemoved: onRemoved,
		maxQueued: DefaultMaxQueued,
		scratch:   make([]byte, api.MaxChunkSize),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With("component", "broadcast")
	return b
}

// Add registers a client. The handle stays owned by the caller.
func (b *Broadcaster) Add(h api.Handle) error {
	if h.FD < 0 {
		return fmt.Errorf("add fd %d: %w", h.FD, api.ErrInvalidArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[h.FD]; ok {
		return fmt.Errorf("add fd %d: already registered: %w", h.FD, api.ErrInvalidArgument)
	}
	if b.reactor != nil {
		// Read interest only serves hangup detection; client input is discarded.
		if err := b.reactor.Register(h.FD, api.EventRead, b.handleEvent); err != nil {
			return fmt.Errorf("watch fd %d: %w", h.FD, err)
		}
	}
	b.clients[h.FD] = &peer{h: h, pending: queue.New()}
	b.log.Debug("client added", "fd", h.FD, "clients", len(b.clients))
	return nil
}

// Remove drops a client and reports it through the removal callback. It
// returns false when the handle is unknown.
func (b *Broadcaster) Remove(h api.Handle) bool {
	b.mu.Lock()
	p, ok := b.clients[h.FD]
	if ok {
		b.dropLocked(p, ReasonRemoved, nil)
	}
	b.mu.Unlock()
	if ok {
		b.notify(p.h)
	}
	return ok
}

// Clear drops every client.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	dropped := make([]api.Handle, 0, len(b.clients))
	for _, p := range b.clients {
		b.dropLocked(p, ReasonRemoved, nil)
		dropped = append(dropped, p.h)
	}
	b.mu.Unlock()
	for _, h := range dropped {
		b.notify(h)
	}
}

// Broadcast queues c for every client and writes as much as the sockets
// accept without blocking. The chunk is copied; callers may reuse it. It
// returns the number of clients still holding the chunk.
func (b *Broadcaster) Broadcast(c api.Chunk) int {
	if len(c) == 0 {
		return 0
	}
	data := append([]byte(nil), c...)
	b.metrics.Broadcast(len(data))

	b.mu.Lock()
	var dropped []api.Handle
	n := 0
	for _, p := range b.clients {
		if p.backlog() >= b.maxQueued {
			b.dropLocked(p, ReasonOverflow, nil)
			dropped = append(dropped, p.h)
			continue
		}
		p.pending.Add(data)
		if reason, err := b.flushLocked(p); reason != "" {
			b.dropLocked(p, reason, err)
			dropped = append(dropped, p.h)
			continue
		}
		n++
	}
	b.mu.Unlock()

	for _, h := range dropped {
		b.notify(h)
	}
	return n
}

// Len returns the number of registered clients.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Backlog returns the number of chunks not yet fully written to h, or -1
// when h is not registered.
func (b *Broadcaster) Backlog(h api.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.clients[h.FD]
	if !ok {
		return -1
	}
	return p.backlog()
}

// Queued returns the total backlog over all clients.
func (b *Broadcaster) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, p := range b.clients {
		total += p.backlog()
	}
	return total
}

// handleEvent services reactor notifications for a client socket.
func (b *Broadcaster) handleEvent(fd int, events api.EventType) {
	b.mu.Lock()
	p, ok := b.clients[fd]
	if !ok {
		b.mu.Unlock()
		return
	}
	reason, err := b.serviceLocked(p, events)
	if reason != "" {
		b.dropLocked(p, reason, err)
	}
	b.mu.Unlock()

	if reason != "" {
		b.notify(p.h)
	}
}

func (b *Broadcaster) serviceLocked(p *peer, events api.EventType) (string, error) {
	if events.Has(api.EventError) {
		return ReasonError, errPeerCondition
	}
	if events.Has(api.EventRead | api.EventHangup) {
		n, err := sock.Read(p.h.FD, b.scratch)
		switch {
		case err != nil && !sock.IsTemporary(err):
			return ReasonError, err
		case err == nil && n == 0:
			return ReasonHangup, nil
		case n > 0:
			b.log.Debug("discarded client input", "fd", p.h.FD, "bytes", n)
		}
	}
	if events.Has(api.EventWrite) {
		return b.flushLocked(p)
	}
	return "", nil
}

// flushLocked writes queued data until the socket would block. It returns a
// removal reason when the client must be dropped.
func (b *Broadcaster) flushLocked(p *peer) (string, error) {
	for {
		if len(p.head) == 0 {
			if p.pending.Length() == 0 {
				break
			}
			p.head = p.pending.Peek().([]byte)
			p.pending.Remove()
		}
		n, err := sock.Send(p.h.FD, p.head)
		if err != nil {
			if !sock.IsTemporary(err) {
				return ReasonError, err
			}
			if err := b.armLocked(p, true); err != nil {
				return ReasonError, err
			}
			return "", nil
		}
		p.head = p.head[n:]
	}
	p.head = nil
	if err := b.armLocked(p, false); err != nil {
		return ReasonError, err
	}
	return "", nil
}

func (b *Broadcaster) armLocked(p *peer, want bool) error {
	if b.reactor == nil || p.armed == want {
		return nil
	}
	events := api.EventRead
	if want {
		events |= api.EventWrite
	}
	if err := b.reactor.Modify(p.h.FD, events); err != nil {
		return fmt.Errorf("modify fd %d: %w", p.h.FD, err)
	}
	p.armed = want
	return nil
}

func (b *Broadcaster) dropLocked(p *peer, reason string, cause error) {
	delete(b.clients, p.h.FD)
	if b.reactor != nil {
		if err := b.reactor.Unregister(p.h.FD); err != nil {
			b.log.Error("failed to remove client watch", "fd", p.h.FD, "error", err)
		}
	}
	p.head = nil
	p.pending = queue.New()
	b.metrics.ClientEvicted(reason)

	if cause != nil {
		b.log.Debug("dropping client", "fd", p.h.FD, "reason", reason, "error", cause)
	} else {
		b.log.Debug("dropping client", "fd", p.h.FD, "reason", reason)
	}
}

func (b *Broadcaster) notify(h api.Handle) {
	if b.onRemoved != nil {
		b.onRemoved(h)
	}
}
