// File: element/clientsrc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Source element: connects to a Unix socket and forwards what it reads.

package element

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/client"
)

// ClientSrcName is the element name used on the bus and in logs.
const ClientSrcName = "unixclientsrc"

// ClientSrc pulls chunks from a client.Reader and writes them downstream.
type ClientSrc struct {
	settings
	prop pathProperty
	rd   *client.Reader
}

// NewClientSrc builds an idle source with the default path.
func NewClientSrc(opts ...Option) (*ClientSrc, error) {
	c := &ClientSrc{settings: buildSettings(ClientSrcName, opts)}
	c.prop.path = api.DefaultPath

	rd, err := client.New(client.WithLogger(c.log), client.WithMetrics(c.metrics))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ClientSrcName, err)
	}
	c.rd = rd

	if c.probes != nil {
		c.probes.RegisterProbe(ClientSrcName+".connected", func() any { return c.rd.Connected() })
		c.probes.RegisterProbe(ClientSrcName+".path", func() any { return c.Path() })
	}
	return c, nil
}

// SetPath sets the socket path used by the next Start. An empty path is
// rejected with a warning and the current value is kept.
func (c *ClientSrc) SetPath(p string) {
	if !c.prop.set(p) {
		c.bus.Post(Message{Type: MessageWarning, Source: ClientSrcName, Text: "path property cannot be empty", Err: api.ErrInvalidArgument})
	}
}

// Path returns the configured socket path.
func (c *ClientSrc) Path() string { return c.prop.get() }

// Bus returns the source's message bus.
func (c *ClientSrc) Bus() *Bus { return c.bus }

// Start connects to the configured path. Open errors are also posted to
// the bus; a cancelled connect is not.
func (c *ClientSrc) Start() error {
	err := c.rd.Start(c.prop.get())
	if err != nil && !errors.Is(err, api.ErrCancelled) {
		c.postError(err)
	}
	return err
}

// Pull returns the next chunk and its flow result.
func (c *ClientSrc) Pull() (api.Chunk, api.FlowReturn, error) {
	chunk, err := c.rd.Pull()
	return chunk, api.FlowFromError(err), err
}

// Run writes every pulled chunk to out until end of stream, an error, or
// ctx is done. Cancelling ctx unlocks the reader; the connection stays
// open and UnlockStop must be called before pulling again.
func (c *ClientSrc) Run(ctx context.Context, out io.Writer) error {
	stop := context.AfterFunc(ctx, c.rd.Unlock)
	defer stop()

	for {
		chunk, flow, err := c.Pull()
		switch flow {
		case api.FlowOK:
			if _, werr := out.Write(chunk); werr != nil {
				werr = fmt.Errorf("%s: write output: %w", ClientSrcName, werr)
				c.postError(werr)
				return werr
			}
		case api.FlowEOS:
			c.bus.Post(Message{Type: MessageEOS, Source: ClientSrcName, Text: "end of stream"})
			return nil
		case api.FlowFlushing:
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return err
		default:
			c.postError(err)
			return err
		}
	}
}

// Unlock interrupts a blocked Pull or Start.
func (c *ClientSrc) Unlock() { c.rd.Unlock() }

// UnlockStop clears the effect of Unlock.
func (c *ClientSrc) UnlockStop() { c.rd.UnlockStop() }

// Stop closes the connection. Idempotent.
func (c *ClientSrc) Stop() error { return c.rd.Stop() }

// Close stops the source and releases its descriptors.
func (c *ClientSrc) Close() error { return c.rd.Close() }

// Connected reports whether the source holds a connection.
func (c *ClientSrc) Connected() bool { return c.rd.Connected() }

func (c *ClientSrc) postError(err error) {
	c.bus.Post(Message{Type: MessageError, Source: ClientSrcName, Text: "client error", Err: err})
}
