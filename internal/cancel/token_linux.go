//go:build linux
// +build linux

// File: internal/cancel/token_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd(2) backed wake descriptor.

package cancel

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

func newWakeFD() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("eventfd: %w", err)
	}
	return fd, nil
}

func signalWakeFD(fd int) {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is already non-zero, which is all we need.
	_, _ = unix.Write(fd, buf[:])
}

func drainWakeFD(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func closeWakeFD(fd int) error {
	return unix.Close(fd)
}
