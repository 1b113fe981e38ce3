//go:build !linux
// +build !linux

// File: internal/cancel/token_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package cancel

import "github.com/momentics/unixbridge/api"

func newWakeFD() (int, error) { return -1, api.ErrNotSupported }
func signalWakeFD(int)        {}
func drainWakeFD(int)         {}
func closeWakeFD(int) error   { return nil }
