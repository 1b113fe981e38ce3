// File: client/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package client implements the connecting side of the bridge: a Reader
// that owns one Unix socket connection and hands out its byte stream one
// chunk per Pull, each chunk sized to what the socket had available.
//
// Blocking in Pull is confined to the readiness wait, which is interrupted
// by Unlock. Stop must not race a blocked Pull; unlock first.
package client
