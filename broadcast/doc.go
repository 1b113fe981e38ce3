// File: broadcast/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package broadcast implements the fan-out side of the bridge: every chunk
// handed to a Broadcaster is written, in order, to every registered client
// socket.
//
// Writes never block. A client that cannot take a chunk right away gets it
// queued, and the queue drains once the reactor reports the socket
// writable. A client that falls too far behind, hangs up, or fails a write
// is dropped and reported back through the removal callback; the
// broadcaster never closes descriptors itself.
package broadcast
