// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-driven accept loop and client registry.

package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/internal/cancel"
	"github.com/momentics/unixbridge/internal/sock"
)

// Ensure compliance with api.ConnectionAcceptor interface.
var _ api.ConnectionAcceptor = (*Server)(nil)

var errListenerCondition = errors.New("client connection failed")

const acceptInterest = api.EventRead | api.EventPriority

// New builds a Server that watches its listener through r and hands
// accepted connections to f.
func New(r api.Reactor, f api.FanOut, opts ...Option) (*Server, error) {
	if r == nil || f == nil {
		return nil, fmt.Errorf("server: reactor and fan-out are required: %w", api.ErrInvalidArgument)
	}
	tok, err := cancel.New()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s := &Server{
		listenFD: -1,
		clients:  make(map[int]api.Handle),
		reactor:  r,
		fanout:   f,
		tok:      tok,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		limiter:  rate.NewLimiter(rate.Every(defaultReportInterval), defaultReportBurst),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "server")
	return s, nil
}

// Start creates the listening socket at path and registers its readiness
// watch. On failure the server is left stopped.
func (s *Server) Start(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateStopped {
		return fmt.Errorf("start %q: already %s: %w", path, s.state, api.ErrNotReady)
	}
	if path == "" {
		return api.NewOpenError("bind", path, api.ErrInvalidArgument)
	}

	log := s.log.With("path", path)
	log.Debug("creating unix socket")
	fd, err := sock.Listen(path, api.ListenBacklog, s.tok)
	if err != nil {
		if errors.Is(err, api.ErrCancelled) {
			log.Debug("cancelled binding")
		} else {
			log.Error("failed to open listener", "error", err)
		}
		return err
	}

	if err := s.reactor.Register(fd, acceptInterest, s.handleEvent); err != nil {
		if cerr := sock.Close(fd); cerr != nil {
			log.Error("failed to close socket", "error", cerr)
		}
		log.Error("failed to watch listener", "error", err)
		return api.NewOpenError("watch", path, err)
	}

	s.path = path
	s.listenFD = fd
	s.armed = acceptInterest
	s.state = stateListening
	log.Debug("listening on server socket", "fd", fd, "backlog", api.ListenBacklog)
	return nil
}

// OnReadable handles one readiness notification of the listening socket.
//
// An error or hangup condition is terminal: the watch is removed and the
// error returned. A readable condition performs exactly one accept. A failed
// accept is returned and the listener is disarmed for AcceptRetryDelay; the
// watch itself stays, so later connections are still accepted.
func (s *Server) OnReadable(events api.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateListening {
		return nil
	}

	switch {
	case events.Has(api.EventError | api.EventHangup):
		s.log.Debug("listener condition", "events", events.String())
		s.unwatchLocked()
		s.state = stateFailed
		return api.NewIOError("poll", s.path, errListenerCondition)
	case events.Has(api.EventRead | api.EventPriority):
		return s.acceptLocked()
	default:
		s.log.Debug("unknown listener condition", "events", events.String())
		return nil
	}
}

func (s *Server) acceptLocked() error {
	if err := s.tok.Err(); err != nil {
		s.armLocked()
		return err
	}
	fd, err := sock.Accept(s.listenFD)
	if err != nil {
		if sock.IsTemporary(err) {
			return nil
		}
		s.metrics.AcceptFailed()
		s.retryLaterLocked()
		return api.NewIOError("accept", s.path, err)
	}

	h := api.Handle{FD: fd}
	s.regMu.Lock()
	s.clients[fd] = h
	s.regMu.Unlock()
	s.metrics.ClientAccepted()

	// The fan-out does not take ownership; the registry entry keeps it.
	if err := s.fanout.Add(h); err != nil {
		s.OnClientRemoved(h)
		return api.NewIOError("add client", s.path, err)
	}
	s.log.Debug("received new client", "fd", fd)
	return nil
}

// OnClientRemoved is called by the fan-out when a client is dropped. It
// closes the client socket; close errors are logged only.
func (s *Server) OnClientRemoved(h api.Handle) {
	s.regMu.Lock()
	_, ok := s.clients[h.FD]
	delete(s.clients, h.FD)
	s.regMu.Unlock()
	if !ok {
		return
	}

	s.log.Debug("closing client socket", "fd", h.FD)
	if err := sock.Close(h.FD); err != nil {
		s.log.Error("failed to close socket", "fd", h.FD, "error", err)
	}
	s.metrics.ClientClosed()
}

// Stop removes the readiness watch, closes the listener and drops every
// remaining client. Safe to call when already stopped.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.cancelRetryLocked()
	if s.listenFD >= 0 {
		s.unwatchLocked()
		s.log.Debug("closing listener", "fd", s.listenFD)
		if err := sock.Close(s.listenFD); err != nil {
			s.log.Error("failed to close socket", "error", err)
		}
		s.listenFD = -1
	}
	s.armed = 0
	s.state = stateStopped
	s.mu.Unlock()

	for _, h := range s.Clients() {
		if !s.fanout.Remove(h) {
			s.OnClientRemoved(h)
		}
	}
	return nil
}

// Close finalizes the server: it stops it, removes the socket file if it is
// still a socket, and releases the cancellation token.
func (s *Server) Close() error {
	_ = s.Stop()

	s.mu.Lock()
	path := s.path
	s.mu.Unlock()
	if path != "" {
		removed, err := sock.RemoveIfSocket(path)
		if err != nil {
			s.log.Error("could not remove socket file", "path", path, "error", err)
		} else {
			s.log.Debug("socket file cleanup", "path", path, "removed", removed)
		}
	}

	var err error
	s.closeTok.Do(func() { err = s.tok.Close() })
	return err
}

// Unlock signals the cancellation token, aborting pending start and
// accept attempts. The listener is disarmed until UnlockStop; connections
// arriving meanwhile wait in the backlog.
func (s *Server) Unlock() {
	s.log.Debug("set to flushing")
	s.tok.Cancel()
	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
}

// UnlockStop clears the cancellation token and re-arms the listener.
func (s *Server) UnlockStop() {
	s.log.Debug("unset flushing")
	s.tok.Reset()
	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
}

// Clients returns a snapshot of the registered client handles.
func (s *Server) Clients() []api.Handle {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	out := make([]api.Handle, 0, len(s.clients))
	for _, h := range s.clients {
		out = append(out, h)
	}
	return out
}

// Len returns the number of registered clients.
func (s *Server) Len() int {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return len(s.clients)
}

// Path returns the path of the last Start.
func (s *Server) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Listening reports whether the accept watch is active.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateListening
}

// handleEvent adapts OnReadable to the reactor callback.
func (s *Server) handleEvent(_ int, events api.EventType) {
	if err := s.OnReadable(events); err != nil {
		s.report(err, events.Has(api.EventError|api.EventHangup))
	}
}

// armLocked brings the listener interest in line with the server state.
// The watch is disarmed while cancelled or waiting out a failed accept, so a
// level-triggered reactor does not keep reporting the pending backlog.
func (s *Server) armLocked() {
	if s.state != stateListening || s.listenFD < 0 {
		return
	}
	var want api.EventType
	if s.retry == nil && !s.tok.IsCancelled() {
		want = acceptInterest
	}
	if want == s.armed {
		return
	}
	if err := s.reactor.Modify(s.listenFD, want); err != nil {
		s.log.Error("failed to update listener watch", "events", want.String(), "error", err)
		return
	}
	s.log.Debug("listener watch updated", "events", want.String())
	s.armed = want
}

func (s *Server) retryLaterLocked() {
	if s.retry != nil {
		return
	}
	s.retryGen++
	gen := s.retryGen
	s.retry = s.clock.AfterFunc(AcceptRetryDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.retryGen {
			return
		}
		s.retry = nil
		s.armLocked()
	})
	s.armLocked()
}

func (s *Server) cancelRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.retryGen++
}

func (s *Server) unwatchLocked() {
	if s.listenFD < 0 {
		return
	}
	if err := s.reactor.Unregister(s.listenFD); err != nil {
		s.log.Error("failed to remove listener watch", "error", err)
	}
}

// report logs err and forwards it to the error handler. Cancellations are
// logged at debug level only; non-terminal errors are rate limited.
func (s *Server) report(err error, terminal bool) {
	if errors.Is(err, api.ErrCancelled) {
		s.log.Debug("cancelled accepting")
		return
	}
	if !terminal && !s.limiter.Allow() {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	s.log.Error("server error", "error", err, "terminal", terminal, "suppressed", dropped)
	if s.onError != nil {
		s.onError(err)
	}
}
