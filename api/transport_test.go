package api_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/unixbridge/api"
)

func TestFlowFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want api.FlowReturn
	}{
		{"chunk", nil, api.FlowOK},
		{"eos", api.ErrEndOfStream, api.FlowEOS},
		{"wrapped eos", fmt.Errorf("pull: %w", api.ErrEndOfStream), api.FlowEOS},
		{"cancelled", api.ErrCancelled, api.FlowFlushing},
		{"not ready", api.ErrNotReady, api.FlowFlushing},
		{"io", api.NewIOError("read", "/tmp/x.sock", syscall.ECONNRESET), api.FlowError},
		{"other", errors.New("boom"), api.FlowError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, api.FlowFromError(tc.err))
		})
	}
}

func TestErrorCodesSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("start: %w", api.NewOpenError("connect", "/tmp/missing.sock", syscall.ENOENT))

	assert.True(t, api.IsOpenError(err))
	assert.False(t, api.IsIOError(err))
	assert.ErrorIs(t, err, syscall.ENOENT)
	assert.ErrorIs(t, err, &api.Error{Code: api.ErrCodeOpen})
	assert.NotErrorIs(t, err, &api.Error{Code: api.ErrCodeIO})

	var e *api.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "connect", e.Op)
	assert.Contains(t, err.Error(), `connect "/tmp/missing.sock"`)
	assert.Contains(t, err.Error(), syscall.ENOENT.Error())
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "none", api.EventType(0).String())
	assert.Equal(t, "in|err|hup", (api.EventRead | api.EventError | api.EventHangup).String())
	assert.True(t, (api.EventRead | api.EventPriority).Has(api.EventPriority))
	assert.False(t, api.EventWrite.Has(api.EventRead))
}

func TestInterfaceCompliance(t *testing.T) {
	var _ api.ByteSource = (*mockSource)(nil)
}

type mockSource struct{}

func (*mockSource) Start(string) error       { return nil }
func (*mockSource) Pull() (api.Chunk, error) { return nil, api.ErrEndOfStream }
func (*mockSource) Unlock()                  {}
func (*mockSource) UnlockStop()              {}
func (*mockSource) Stop() error              { return nil }
