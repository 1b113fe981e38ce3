// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the byte-stream roles of the bridge: the pull-based source on the
// client side, the acceptor on the server side, and the fan-out collaborator
// between them.

package api

// DefaultPath is the socket path used when none is configured.
const DefaultPath = "/tmp/gst-unix.sock"

// MaxChunkSize bounds the size of a single Chunk.
const MaxChunkSize = 4 * 1024

// ListenBacklog is the listen(2) backlog of the server socket.
const ListenBacklog = 5

// Chunk is one unit of bytes produced by a single read. Chunks are never
// padded: len(c) is exactly the number of bytes received.
type Chunk []byte

// Handle identifies one accepted client connection by its descriptor.
type Handle struct {
	FD int
}

// ByteSource delivers the byte stream of a single connection, one Chunk
// per Pull.
type ByteSource interface {
	Start(path string) error
	// Pull returns a chunk, or one of ErrEndOfStream, ErrCancelled,
	// ErrNotReady or an ErrCodeIO *Error.
	Pull() (Chunk, error)
	// Unlock signals the cancellation token; UnlockStop clears it.
	Unlock()
	UnlockStop()
	Stop() error
}

// ConnectionAcceptor accepts inbound connections on a filesystem path.
type ConnectionAcceptor interface {
	Start(path string) error
	// OnReadable performs at most one non-blocking accept.
	OnReadable(events EventType) error
	Stop() error
}

// FanOut receives accepted connections and writes the outgoing stream to
// all of them. It does not take ownership of the handles: when a client is
// dropped it reports the handle back to the acceptor, which closes it.
type FanOut interface {
	Add(h Handle) error
	Remove(h Handle) bool
}
