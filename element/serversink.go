// File: element/serversink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sink element: listens on a Unix socket and writes its input to every
// connected client.

package element

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/broadcast"
	"github.com/momentics/unixbridge/reactor"
	"github.com/momentics/unixbridge/server"
)

// ServerSinkName is the element name used on the bus and in logs.
const ServerSinkName = "unixserversink"

// ServerSink owns the reactor, the accepting server and the broadcaster.
type ServerSink struct {
	settings
	prop pathProperty

	reactor *reactor.Reactor
	srv     *server.Server
	bc      *broadcast.Broadcaster

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	done    sync.WaitGroup
}

// NewServerSink builds a stopped sink with the default path.
func NewServerSink(opts ...Option) (*ServerSink, error) {
	s := &ServerSink{settings: buildSettings(ServerSinkName, opts)}
	s.prop.path = api.DefaultPath

	r, err := reactor.New(reactor.WithLogger(s.log))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ServerSinkName, err)
	}

	// The broadcaster reports drops to the server, which closes the socket.
	var srv *server.Server
	s.bc = broadcast.New(r, func(h api.Handle) { srv.OnClientRemoved(h) },
		broadcast.WithLogger(s.log),
		broadcast.WithMetrics(s.metrics),
		broadcast.WithMaxQueued(s.maxQueued),
	)
	srv, err = server.New(r, s.bc,
		server.WithLogger(s.log),
		server.WithMetrics(s.metrics),
		server.WithErrorHandler(s.postError),
	)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%s: %w", ServerSinkName, err)
	}
	s.reactor = r
	s.srv = srv

	if s.probes != nil {
		s.probes.RegisterProbe(ServerSinkName+".clients", func() any { return s.srv.Len() })
		s.probes.RegisterProbe(ServerSinkName+".queued", func() any { return s.bc.Queued() })
		s.probes.RegisterProbe(ServerSinkName+".listening", func() any { return s.srv.Listening() })
		s.probes.RegisterProbe(ServerSinkName+".path", func() any { return s.Path() })
	}
	return s, nil
}

// SetPath sets the socket path used by the next Start. An empty path is
// rejected with a warning and the current value is kept.
func (s *ServerSink) SetPath(p string) {
	if !s.prop.set(p) {
		s.bus.Post(Message{Type: MessageWarning, Source: ServerSinkName, Text: "path property cannot be empty", Err: api.ErrInvalidArgument})
	}
}

// Path returns the configured socket path.
func (s *ServerSink) Path() string { return s.prop.get() }

// Bus returns the sink's message bus.
func (s *ServerSink) Bus() *Bus { return s.bus }

// Start opens the listener and runs the event loop.
func (s *ServerSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("%s: already running: %w", ServerSinkName, api.ErrNotReady)
	}

	path := s.prop.get()
	if err := s.srv.Start(path); err != nil {
		if !errors.Is(err, api.ErrCancelled) {
			s.postError(err)
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.running = true

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		if err := s.reactor.Run(ctx); err != nil {
			s.postError(fmt.Errorf("event loop: %w", err))
		}
	}()
	if s.statsInterval > 0 {
		s.done.Add(1)
		go func() {
			defer s.done.Done()
			s.reportStats(ctx)
		}()
	}
	s.log.Info("listening", "path", path)
	return nil
}

// Render broadcasts one chunk to every connected client.
func (s *ServerSink) Render(c api.Chunk) api.FlowReturn {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return api.FlowFlushing
	}
	s.bc.Broadcast(c)
	return api.FlowOK
}

// Run copies in to the clients in chunks of at most api.MaxChunkSize until
// in is exhausted, ctx is done or the sink stops. End of input is posted to
// the bus. A Read blocked on in is not interrupted by ctx.
func (s *ServerSink) Run(ctx context.Context, in io.Reader) error {
	buf := make([]byte, api.MaxChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := in.Read(buf)
		if n > 0 {
			if flow := s.Render(buf[:n]); flow != api.FlowOK {
				return fmt.Errorf("%s: render: %s: %w", ServerSinkName, flow, api.ErrNotReady)
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			s.bus.Post(Message{Type: MessageEOS, Source: ServerSinkName, Text: "end of input"})
			return nil
		case err != nil:
			err = fmt.Errorf("%s: read input: %w", ServerSinkName, err)
			s.postError(err)
			return err
		}
	}
}

// Unlock aborts pending start and accept work.
func (s *ServerSink) Unlock() { s.srv.Unlock() }

// UnlockStop clears the effect of Unlock.
func (s *ServerSink) UnlockStop() { s.srv.UnlockStop() }

// Stop halts the event loop, closes the listener and drops every client.
// Idempotent.
func (s *ServerSink) Stop() error {
	s.mu.Lock()
	if s.running {
		s.stop()
		s.running = false
	}
	s.mu.Unlock()

	s.done.Wait()
	return s.srv.Stop()
}

// Close stops the sink, removes the socket file and releases descriptors.
func (s *ServerSink) Close() error {
	_ = s.Stop()
	return errors.Join(s.srv.Close(), s.reactor.Close())
}

// Clients returns the number of connected clients.
func (s *ServerSink) Clients() int { return s.srv.Len() }

func (s *ServerSink) reportStats(ctx context.Context) {
	ticker := s.clock.NewTicker(s.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			clients, queued := s.srv.Len(), s.bc.Queued()
			s.log.Info("stats", "clients", clients, "queued", queued)
			s.bus.Post(Message{
				Type:   MessageInfo,
				Source: ServerSinkName,
				Text:   fmt.Sprintf("clients=%d queued=%d", clients, queued),
			})
		}
	}
}

func (s *ServerSink) postError(err error) {
	s.bus.Post(Message{Type: MessageError, Source: ServerSinkName, Text: "server error", Err: err})
}
