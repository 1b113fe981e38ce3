// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness-driven event loop that drives the
// server accept path and the fan-out client sockets. The Linux implementation
// is level-triggered epoll; other platforms get a stub.
package reactor
