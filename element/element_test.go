//go:build linux

package element_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/client"
	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/element"
)

func newSink(t *testing.T, opts ...element.Option) (*element.ServerSink, string) {
	t.Helper()
	sink, err := element.NewServerSink(append([]element.Option{element.WithStatsInterval(0)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	path := filepath.Join(t.TempDir(), "sink.sock")
	sink.SetPath(path)
	return sink, path
}

func newReader(t *testing.T, path string) *client.Reader {
	t.Helper()
	r, err := client.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Start(path))
	return r
}

// next returns the first bus message of type typ.
func next(t *testing.T, bus *element.Bus, typ element.MessageType) element.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-bus.Messages():
			if m.Type == typ {
				return m
			}
		case <-timeout:
			t.Fatalf("no %s message on bus", typ)
			return element.Message{}
		}
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	fc := clockwork.NewFakeClock()
	bus := element.NewBus(1, fc, nil)

	bus.Post(element.Message{Type: element.MessageInfo, Text: "first"})
	bus.Post(element.Message{Type: element.MessageInfo, Text: "second"})
	assert.Equal(t, int64(1), bus.Dropped())

	m := <-bus.Messages()
	assert.Equal(t, "first", m.Text)
	assert.Equal(t, fc.Now(), m.Time)
}

func TestSetPathRejectsEmpty(t *testing.T) {
	sink, path := newSink(t)
	sink.SetPath("")
	assert.Equal(t, path, sink.Path(), "value left unchanged")
	m := next(t, sink.Bus(), element.MessageWarning)
	assert.ErrorIs(t, m.Err, api.ErrInvalidArgument)

	src, err := element.NewClientSrc()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	assert.Equal(t, api.DefaultPath, src.Path())
	src.SetPath("")
	assert.Equal(t, api.DefaultPath, src.Path())
	next(t, src.Bus(), element.MessageWarning)
}

func TestServerSinkBroadcasts(t *testing.T) {
	probes := control.NewDebugProbes()
	sink, path := newSink(t, element.WithProbes(probes))
	assert.Equal(t, api.FlowFlushing, sink.Render(api.Chunk("early")), "not started")
	require.NoError(t, sink.Start())

	r1 := newReader(t, path)
	r2 := newReader(t, path)
	require.Eventually(t, func() bool { return sink.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, probes.DumpState()["unixserversink.clients"])

	require.Equal(t, api.FlowOK, sink.Render(api.Chunk("hello")))
	for _, r := range []*client.Reader{r1, r2} {
		c, err := r.Pull()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(c))
	}

	// Stopping the sink closes every client socket.
	require.NoError(t, sink.Stop())
	require.NoError(t, sink.Stop())
	for _, r := range []*client.Reader{r1, r2} {
		_, err := r.Pull()
		assert.ErrorIs(t, err, api.ErrEndOfStream)
	}
	assert.Zero(t, sink.Clients())

	require.NoError(t, sink.Close())
	_, err := os.Lstat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestServerSinkDropsDisconnectedClient(t *testing.T) {
	sink, path := newSink(t)
	require.NoError(t, sink.Start())

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	stay := newReader(t, path)
	require.Eventually(t, func() bool { return sink.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return sink.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	sink.Render(api.Chunk("still here"))
	c, err := stay.Pull()
	require.NoError(t, err)
	assert.Equal(t, "still here", string(c))
}

func TestServerSinkRunCopiesInput(t *testing.T) {
	sink, path := newSink(t)
	require.NoError(t, sink.Start())
	r := newReader(t, path)
	require.Eventually(t, func() bool { return sink.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	input := strings.Repeat("0123456789", 1000)
	require.NoError(t, sink.Run(context.Background(), strings.NewReader(input)))
	next(t, sink.Bus(), element.MessageEOS)

	var got []byte
	for len(got) < len(input) {
		c, err := r.Pull()
		require.NoError(t, err)
		require.LessOrEqual(t, len(c), api.MaxChunkSize)
		got = append(got, c...)
	}
	assert.Equal(t, input, string(got))
}

func TestServerSinkStartFailurePostsError(t *testing.T) {
	sink, _ := newSink(t)
	plain := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(plain, nil, 0o600))
	sink.SetPath(plain)

	err := sink.Start()
	require.Error(t, err)
	m := next(t, sink.Bus(), element.MessageError)
	assert.True(t, api.IsOpenError(m.Err))
	assert.Contains(t, m.Err.Error(), plain)
}

func TestServerSinkStats(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sink, _ := newSink(t, element.WithClock(fc), element.WithStatsInterval(time.Second))
	require.NoError(t, sink.Start())

	require.NoError(t, fc.BlockUntilContext(context.Background(), 1))
	fc.Advance(time.Second)
	m := next(t, sink.Bus(), element.MessageInfo)
	assert.Equal(t, "clients=0 queued=0", m.Text)
}

func TestClientSrcRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	src, err := element.NewClientSrc()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	src.SetPath(path)
	require.NoError(t, src.Start())

	peer, err := ln.Accept()
	require.NoError(t, err)
	_, err = peer.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	var out bytes.Buffer
	require.NoError(t, src.Run(context.Background(), &out))
	assert.Equal(t, "abc", out.String())
	next(t, src.Bus(), element.MessageEOS)
}

func TestClientSrcRunCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	src, err := element.NewClientSrc()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	src.SetPath(path)
	require.NoError(t, src.Start())
	peer, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	err = src.Run(ctx, &out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, src.Connected(), "cancellation keeps the connection")

	src.UnlockStop()
	_, err = peer.Write([]byte("later"))
	require.NoError(t, err)
	c, flow, err := src.Pull()
	require.NoError(t, err)
	assert.Equal(t, api.FlowOK, flow)
	assert.Equal(t, "later", string(c))
}

func TestClientSrcStartFailure(t *testing.T) {
	src, err := element.NewClientSrc()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	src.SetPath(filepath.Join(t.TempDir(), "missing.sock"))

	err = src.Start()
	assert.True(t, api.IsOpenError(err))
	assert.False(t, src.Connected())
	m := next(t, src.Bus(), element.MessageError)
	assert.True(t, api.IsOpenError(m.Err))
}
