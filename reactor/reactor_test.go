//go:build linux

package reactor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/unixbridge/api"
	"github.com/momentics/unixbridge/reactor"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReactorDispatchesReadable(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	a, b := socketPair(t)
	var got api.EventType
	calls := 0
	require.NoError(t, r.Register(a, api.EventRead, func(fd int, ev api.EventType) {
		assert.Equal(t, a, fd)
		got = ev
		calls++
	}))
	assert.Equal(t, 1, r.Len())

	n, err := r.Poll(0)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing written yet")

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	n, err = r.Poll(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
	assert.True(t, got.Has(api.EventRead))

	require.NoError(t, r.Unregister(a))
	require.NoError(t, r.Unregister(a), "unregister is idempotent")
	n, err = r.Poll(0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReactorModifyAndHangup(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	a, b := socketPair(t)
	var got api.EventType
	require.NoError(t, r.Register(a, api.EventRead, func(_ int, ev api.EventType) { got = ev }))

	require.NoError(t, r.Modify(a, api.EventRead|api.EventWrite))
	_, err = r.Poll(1000)
	require.NoError(t, err)
	assert.True(t, got.Has(api.EventWrite), "empty send buffer is writable")

	require.NoError(t, r.Modify(a, api.EventRead))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_RDWR))
	got = 0
	_, err = r.Poll(1000)
	require.NoError(t, err)
	assert.True(t, got.Has(api.EventHangup|api.EventRead), "got %s", got)
}

func TestReactorRecoversHandlerPanic(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	a, b := socketPair(t)
	require.NoError(t, r.Register(a, api.EventRead, func(int, api.EventType) { panic("boom") }))
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err = r.Poll(1000)
	})
	assert.NoError(t, err)
}

func TestReactorRunStopsOnContext(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReactorClose(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Poll(0)
	assert.ErrorIs(t, err, reactor.ErrClosed)
	assert.ErrorIs(t, r.Register(0, api.EventRead, func(int, api.EventType) {}), reactor.ErrClosed)
}
