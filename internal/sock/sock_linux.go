//go:build linux
// +build linux

// File: internal/sock/sock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux implementation on top of golang.org/x/sys/unix.

package sock

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/internal/cancel"
)

// Listen creates a non-blocking Unix stream socket bound to path and
// listening with the given backlog. A stale socket file at path is replaced.
// The token is checked between steps; a signalled token yields
// api.ErrCancelled instead of an open error.
func Listen(path string, backlog int, tok *cancel.Token) (int, error) {
	if err := tok.Err(); err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, api.NewOpenError("socket", path, err)
	}
	fail := func(op string, err error) (int, error) {
		_ = unix.Close(fd)
		if cerr := tok.Err(); cerr != nil {
			return -1, cerr
		}
		return -1, api.NewOpenError(op, path, err)
	}

	if _, err := RemoveIfSocket(path); err != nil {
		return fail("unlink", err)
	}
	if err := tok.Err(); err != nil {
		return fail("bind", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		return fail("bind", err)
	}
	if err := tok.Err(); err != nil {
		return fail("listen", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	return fd, nil
}

// Accept takes one pending connection off a non-blocking listener.
// It returns unix.EAGAIN when nothing is pending. The accepted socket is
// non-blocking.
func Accept(fd int) (int, error) {
	for {
		nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return -1, err
		}
		return nfd, nil
	}
}

// Connect opens a non-blocking stream socket and connects it to path,
// waiting (cancellably) while the connection is in progress or the
// listener's backlog is full.
func Connect(path string, tok *cancel.Token) (int, error) {
	if err := tok.Err(); err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, api.NewOpenError("socket", path, err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	for {
		err = unix.Connect(fd, sa)
		switch err {
		case nil:
			return fd, nil
		case unix.EINTR:
			continue
		case unix.EINPROGRESS:
			if _, werr := Wait(fd, api.EventWrite, tok); werr != nil {
				_ = unix.Close(fd)
				return -1, werr
			}
			soerr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if gerr == nil && soerr == 0 {
				return fd, nil
			}
			if gerr == nil {
				gerr = unix.Errno(soerr)
			}
			_ = unix.Close(fd)
			return -1, api.NewOpenError("connect", path, gerr)
		case unix.EAGAIN:
			// Backlog full: a blocking connect would sleep here.
			if perr := pause(tok, connectRetryMs); perr != nil {
				_ = unix.Close(fd)
				return -1, perr
			}
		default:
			_ = unix.Close(fd)
			return -1, api.NewOpenError("connect", path, err)
		}
	}
}

// Available returns the number of bytes readable without blocking.
func Available(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.SIOCINQ)
}

// Wait blocks until fd reports any of the requested conditions, or an error
// or hangup condition, or until tok is signalled (api.ErrCancelled).
// It returns the reported conditions.
func Wait(fd int, events api.EventType, tok *cancel.Token) (api.EventType, error) {
	if err := tok.Err(); err != nil {
		return 0, err
	}
	var want int16
	if events.Has(api.EventRead) {
		want |= unix.POLLIN
	}
	if events.Has(api.EventPriority) {
		want |= unix.POLLPRI
	}
	if events.Has(api.EventWrite) {
		want |= unix.POLLOUT
	}
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: want},
		{Fd: int32(tok.FD()), Events: unix.POLLIN},
	}
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if fds[1].Revents != 0 && tok.IsCancelled() {
			return 0, api.ErrCancelled
		}
		if got := fromPoll(fds[0].Revents); got != 0 {
			return got, nil
		}
	}
}

// Read performs one read(2), retrying only on EINTR.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Send writes p without blocking and without raising SIGPIPE.
func Send(fd int, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Close closes a descriptor.
func Close(fd int) error {
	return unix.Close(fd)
}

// IsTemporary reports whether err is a would-block condition.
func IsTemporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// pause sleeps for ms milliseconds unless tok is signalled first.
func pause(tok *cancel.Token, ms int) error {
	fds := []unix.PollFd{{Fd: int32(tok.FD()), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		return tok.Err()
	}
}

func fromPoll(revents int16) api.EventType {
	var ev api.EventType
	if revents&unix.POLLIN != 0 {
		ev |= api.EventRead
	}
	if revents&unix.POLLPRI != 0 {
		ev |= api.EventPriority
	}
	if revents&unix.POLLOUT != 0 {
		ev |= api.EventWrite
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		ev |= api.EventError
	}
	if revents&unix.POLLHUP != 0 {
		ev |= api.EventHangup
	}
	return ev
}
