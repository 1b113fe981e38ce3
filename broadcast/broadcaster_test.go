//go:build linux

package broadcast_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/broadcast"
	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/fake"
)

// pair returns a connected socket pair: the server end (non-blocking, owned
// by the test) and the client end (non-blocking).
func pair(t *testing.T) (api.Handle, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return api.Handle{FD: fds[0]}, fds[1]
}

// drain reads everything currently buffered on fd.
func drain(t *testing.T, fd int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN {
			return out
		}
		require.NoError(t, err)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

type removals struct {
	mu      sync.Mutex
	handles []api.Handle
}

func (r *removals) record(h api.Handle) {
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
}

func (r *removals) list() []api.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Handle(nil), r.handles...)
}

func pattern(i, size int) []byte {
	return bytes.Repeat([]byte{byte(i % 251)}, size)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	fr := fake.NewReactor()
	b := broadcast.New(fr, nil)

	var peers []int
	for i := 0; i < 3; i++ {
		h, peer := pair(t)
		require.NoError(t, b.Add(h))
		assert.Equal(t, api.EventRead, fr.Interest(h.FD))
		peers = append(peers, peer)
	}
	require.Equal(t, 3, b.Len())

	assert.Equal(t, 3, b.Broadcast(api.Chunk("hello ")))
	assert.Equal(t, 3, b.Broadcast(api.Chunk("world")))
	assert.Zero(t, b.Broadcast(nil), "empty chunks are not sent")

	for _, peer := range peers {
		assert.Equal(t, "hello world", string(drain(t, peer)))
	}
	assert.Zero(t, b.Queued())
}

func TestBroadcastCopiesChunk(t *testing.T) {
	b := broadcast.New(nil, nil)
	h, peer := pair(t)
	require.NoError(t, b.Add(h))

	c := api.Chunk("abc")
	b.Broadcast(c)
	c[0] = 'x'
	assert.Equal(t, "abc", string(drain(t, peer)))
}

func TestBroadcastBackpressure(t *testing.T) {
	fr := fake.NewReactor()
	b := broadcast.New(fr, nil, broadcast.WithMaxQueued(100000))
	h, peer := pair(t)
	require.NoError(t, b.Add(h))

	// Fill the socket buffer until chunks start queueing.
	sent := 0
	for i := 0; b.Backlog(h) == 0; i++ {
		require.Less(t, i, 10000, "socket buffer never filled")
		require.Equal(t, 1, b.Broadcast(pattern(sent, api.MaxChunkSize)))
		sent++
	}
	for i := 0; i < 8; i++ {
		b.Broadcast(pattern(sent, api.MaxChunkSize))
		sent++
	}
	assert.Equal(t, api.EventRead|api.EventWrite, fr.Interest(h.FD), "write interest armed")

	var got []byte
	for i := 0; b.Backlog(h) > 0; i++ {
		require.Less(t, i, 10000, "backlog never drained")
		got = append(got, drain(t, peer)...)
		fr.Fire(h.FD, api.EventWrite)
	}
	got = append(got, drain(t, peer)...)
	assert.Equal(t, api.EventRead, fr.Interest(h.FD), "write interest released")

	require.Len(t, got, sent*api.MaxChunkSize)
	for i := 0; i < sent; i++ {
		chunk := got[i*api.MaxChunkSize : (i+1)*api.MaxChunkSize]
		require.Equal(t, pattern(i, api.MaxChunkSize), chunk, "chunk %d out of order", i)
	}
}

func TestBroadcastOverflowEvicts(t *testing.T) {
	fr := fake.NewReactor()
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(reg)
	var rm removals
	b := broadcast.New(fr, rm.record, broadcast.WithMaxQueued(2), broadcast.WithMetrics(m))

	slow, _ := pair(t)
	fast, fastPeer := pair(t)
	require.NoError(t, b.Add(slow))
	require.NoError(t, b.Add(fast))

	for i := 0; i < 10000 && b.Len() == 2; i++ {
		b.Broadcast(pattern(i, api.MaxChunkSize))
		drain(t, fastPeer)
		fr.Fire(fast.FD, api.EventWrite)
	}

	assert.Equal(t, []api.Handle{slow}, rm.list())
	assert.Equal(t, 1, b.Len())
	assert.False(t, fr.Registered(slow.FD))
	assert.Equal(t, -1, b.Backlog(slow))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvictionsTotal.WithLabelValues(broadcast.ReasonOverflow)))

	_, err := unix.FcntlInt(uintptr(slow.FD), unix.F_GETFD, 0)
	assert.NoError(t, err, "descriptor left open for the owner")
}

func TestHangupEvicts(t *testing.T) {
	fr := fake.NewReactor()
	var rm removals
	b := broadcast.New(fr, rm.record)
	h, peer := pair(t)
	other, _ := pair(t)
	require.NoError(t, b.Add(h))
	require.NoError(t, b.Add(other))

	require.NoError(t, unix.Close(peer))
	fr.Fire(h.FD, api.EventRead|api.EventHangup)

	assert.Equal(t, []api.Handle{h}, rm.list())
	assert.Equal(t, 1, b.Len(), "other clients unaffected")
	assert.True(t, fr.Registered(other.FD))
	assert.False(t, fr.Fire(h.FD, api.EventRead), "watch removed")
}

func TestErrorConditionEvicts(t *testing.T) {
	fr := fake.NewReactor()
	var rm removals
	b := broadcast.New(fr, rm.record)
	h, _ := pair(t)
	require.NoError(t, b.Add(h))

	fr.Fire(h.FD, api.EventError)
	assert.Equal(t, []api.Handle{h}, rm.list())
	assert.Zero(t, b.Len())
}

func TestWriteErrorEvicts(t *testing.T) {
	var rm removals
	b := broadcast.New(nil, rm.record)
	h, peer := pair(t)
	require.NoError(t, b.Add(h))
	require.NoError(t, unix.Close(peer))

	// EPIPE, delivered without SIGPIPE.
	assert.Zero(t, b.Broadcast(api.Chunk("data")))
	assert.Equal(t, []api.Handle{h}, rm.list())
}

func TestClientInputDiscarded(t *testing.T) {
	fr := fake.NewReactor()
	var rm removals
	b := broadcast.New(fr, rm.record)
	h, peer := pair(t)
	require.NoError(t, b.Add(h))

	_, err := unix.Write(peer, []byte("noise"))
	require.NoError(t, err)
	fr.Fire(h.FD, api.EventRead)
	fr.Fire(h.FD, api.EventRead) // nothing left: would block

	assert.Empty(t, rm.list())
	assert.Equal(t, 1, b.Len())
}

func TestRemoveAndClear(t *testing.T) {
	fr := fake.NewReactor()
	var rm removals
	b := broadcast.New(fr, rm.record)
	h1, _ := pair(t)
	h2, _ := pair(t)
	h3, _ := pair(t)
	for _, h := range []api.Handle{h1, h2, h3} {
		require.NoError(t, b.Add(h))
	}

	assert.True(t, b.Remove(h1))
	assert.False(t, b.Remove(h1), "already removed")
	assert.Equal(t, []api.Handle{h1}, rm.list())

	b.Clear()
	assert.Zero(t, b.Len())
	assert.Zero(t, fr.Len())
	assert.ElementsMatch(t, []api.Handle{h1, h2, h3}, rm.list())
}

func TestAddRejects(t *testing.T) {
	fr := fake.NewReactor()
	b := broadcast.New(fr, nil)
	h, _ := pair(t)

	assert.ErrorIs(t, b.Add(api.Handle{FD: -1}), api.ErrInvalidArgument)
	require.NoError(t, b.Add(h))
	assert.ErrorIs(t, b.Add(h), api.ErrInvalidArgument)

	other, _ := pair(t)
	fr.RegisterErr = assert.AnError
	assert.ErrorIs(t, b.Add(other), assert.AnError)
	assert.Equal(t, 1, b.Len())
}
