//go:build linux

package sockwait_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/unixbridge/internal/sockwait"
)

func listen(t *testing.T, path string) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
}

func TestWaitExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "up.sock")
	listen(t, path)
	assert.NoError(t, sockwait.Wait(context.Background(), path, time.Second))
}

func TestWaitAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.sock")
	done := make(chan error, 1)
	go func() { done <- sockwait.Wait(context.Background(), path, 0) }()

	time.Sleep(50 * time.Millisecond)
	listen(t, path)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("socket creation not observed")
	}
}

func TestWaitIgnoresRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sockwait.Wait(ctx, path, 0) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestWaitTimeout(t *testing.T) {
	fc := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "never.sock")
	done := make(chan error, 1)
	go func() { done <- sockwait.WaitWithClock(context.Background(), fc, path, 3*time.Second) }()

	require.NoError(t, fc.BlockUntilContext(context.Background(), 1))
	fc.Advance(3 * time.Second)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, sockwait.ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout not reported")
	}
}

func TestWaitMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "x.sock")
	assert.Error(t, sockwait.Wait(context.Background(), path, time.Second))
}
