// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/internal/cancel"
)

// Defaults for throttling non-fatal error reports.
const (
	defaultReportInterval = time.Second
	defaultReportBurst    = 5
)

// AcceptRetryDelay is how long the listener stays disarmed after an accept
// fails with a non-transient error.
const AcceptRetryDelay = 100 * time.Millisecond

type state int

const (
	stateStopped state = iota
	stateListening
	// stateFailed: the listener reported an error condition and its watch
	// was removed. Stop is still required to release it.
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateListening:
		return "listening"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Server is the listening side of the bridge. It accepts connections on a
// filesystem path, keeps the authoritative registry of accepted sockets and
// hands each of them to a fan-out collaborator.
type Server struct {
	mu       sync.Mutex // guards state, path, listenFD and the arming fields
	state    state
	path     string
	listenFD int
	armed    api.EventType   // interest currently set on listenFD
	retry    clockwork.Timer // pending re-arm after a failed accept
	retryGen int

	regMu   sync.Mutex
	clients map[int]api.Handle

	reactor api.Reactor
	fanout  api.FanOut
	tok     *cancel.Token

	clock    clockwork.Clock
	log      *slog.Logger
	metrics  *control.Metrics
	onError  func(error)
	limiter  *rate.Limiter
	dropped  int // reports suppressed by limiter since the last one
	closeTok sync.Once
}
