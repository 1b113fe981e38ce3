//go:build !linux
// +build !linux

// File: internal/sock/sock_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package sock

import (
	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/internal/cancel"
)

func Listen(string, int, *cancel.Token) (int, error) { return -1, api.ErrNotSupported }
func Accept(int) (int, error)                        { return -1, api.ErrNotSupported }
func Connect(string, *cancel.Token) (int, error)     { return -1, api.ErrNotSupported }
func Available(int) (int, error)                     { return 0, api.ErrNotSupported }
func Read(int, []byte) (int, error)                  { return 0, api.ErrNotSupported }
func Send(int, []byte) (int, error)                  { return 0, api.ErrNotSupported }
func Close(int) error                                { return api.ErrNotSupported }
func IsTemporary(error) bool                         { return false }

func Wait(int, api.EventType, *cancel.Token) (api.EventType, error) {
	return 0, api.ErrNotSupported
}
