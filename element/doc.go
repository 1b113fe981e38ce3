// File: element/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package element wraps the server and client halves of the bridge as
// pipeline elements: each carries a path property, posts errors and
// end-of-stream to a Bus, and moves bytes between the socket and a plain
// io.Reader or io.Writer.
package element
