package eureka

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartLoop_Ticks(t *testing.T) {
	var ticks atomic.Int32
	h, err := startLoop("test", 0, 10*time.Millisecond, time.Second, func(context.Context) {
		ticks.Add(1)
	})
	require.NoError(t, err)
	assert.True(t, h.Running())

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.Stop())
	assert.False(t, h.Running())
	n := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())

	// 重复 Stop 无副作用
	assert.NoError(t, h.Stop())
}

func TestStartLoop_Delay(t *testing.T) {
	var ticks atomic.Int32
	h, err := startLoop("test", time.Hour, 10*time.Millisecond, time.Second, func(context.Context) {
		ticks.Add(1)
	})
	require.NoError(t, err)
	defer h.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, ticks.Load())
}

func TestStartLoop_StopCancelsTickContext(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	h, err := startLoop("test", 0, time.Hour, 50*time.Millisecond, func(ctx context.Context) {
		close(started)
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-time.After(2 * time.Second):
		}
	})
	require.NoError(t, err)

	<-started
	_ = h.Stop()
	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}

func TestStartLoop_InvalidInterval(t *testing.T) {
	_, err := startLoop("test", 0, 0, time.Second, func(context.Context) {})
	assert.Error(t, err)
}
