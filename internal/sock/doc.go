// File: internal/sock/doc.go
// Package sock
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw Unix-domain stream socket primitives over golang.org/x/sys/unix:
// non-blocking listen/accept, cancellable connect, readiness waits that
// honor a cancel.Token, and the FIONREAD availability probe. The net package
// hides both the descriptor readiness state and the pending byte count, which
// the server accept loop and the client pull loop are built on.

package sock
