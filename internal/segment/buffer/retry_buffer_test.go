package buffer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestBuffer(t *testing.T, dir string, queueSize int) *RetryBuffer {
	rb, err := Open(
		Config{Directory: dir, QueueSize: queueSize, ReadInterval: 10 * time.Millisecond, ReadBatch: 2},
		telemetry.NewNopMetrics(),
		zap.NewNop(),
	)
	require.NoError(t, err)
	return rb
}

func enqueueAll(t *testing.T, rb *RetryBuffer, envelopes ...string) {
	for i, envelope := range envelopes {
		require.NoError(t, rb.Enqueue(fmt.Sprintf("seg.%d", i), []byte(envelope)))
	}
	require.NoError(t, rb.Flush(context.Background()))
}

func TestRetryBuffer(t *testing.T) {
	ctx := context.Background()

	t.Run("Replays entries in append order and removes accepted ones", func(t *testing.T) {
		rb := openTestBuffer(t, t.TempDir(), 16)
		defer rb.Close()
		enqueueAll(t, rb, "a", "b", "c", "d", "e")

		var seen []string
		removed, err := rb.Drain(ctx, func(_ context.Context, raw []byte) bool {
			seen = append(seen, string(raw))
			return string(raw) != "c"
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
		assert.Equal(t, 4, removed)

		n, err := rb.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Keeps rejected entries for the next pass", func(t *testing.T) {
		rb := openTestBuffer(t, t.TempDir(), 16)
		defer rb.Close()
		enqueueAll(t, rb, "unresolved")

		for i := 0; i < 3; i++ {
			removed, err := rb.Drain(ctx, func(context.Context, []byte) bool { return false })
			require.NoError(t, err)
			assert.Zero(t, removed)
		}
		removed, err := rb.Drain(ctx, func(context.Context, []byte) bool { return true })
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})

	t.Run("Survives a restart", func(t *testing.T) {
		dir := t.TempDir()
		rb := openTestBuffer(t, dir, 16)
		enqueueAll(t, rb, "first", "second")
		require.NoError(t, rb.Close())

		reopened := openTestBuffer(t, dir, 16)
		defer reopened.Close()
		var seen []string
		_, err := reopened.Drain(ctx, func(_ context.Context, raw []byte) bool {
			seen = append(seen, string(raw))
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, seen)
	})

	t.Run("Tracks its length across writes, drains and reopen", func(t *testing.T) {
		dir := t.TempDir()
		metrics := telemetry.NewMetrics(prometheus.NewRegistry())
		rb, err := Open(
			Config{Directory: dir, QueueSize: 16, ReadInterval: time.Hour, ReadBatch: 2},
			metrics,
			zap.NewNop(),
		)
		require.NoError(t, err)
		enqueueAll(t, rb, "a", "b", "c")

		n, err := rb.Len()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 3.0, testutil.ToFloat64(metrics.BufferLength))

		_, err = rb.Drain(ctx, func(_ context.Context, raw []byte) bool { return string(raw) == "b" })
		require.NoError(t, err)
		n, _ = rb.Len()
		assert.Equal(t, 2, n)
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BufferLength))
		require.NoError(t, rb.Close())

		reopened := openTestBuffer(t, dir, 16)
		defer reopened.Close()
		n, err = reopened.Len()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Rejects segments after close", func(t *testing.T) {
		rb := openTestBuffer(t, t.TempDir(), 16)
		require.NoError(t, rb.Close())
		assert.ErrorIs(t, rb.Enqueue("seg", []byte("x")), ErrBufferClosed)
	})

	t.Run("Run drains periodically until cancelled", func(t *testing.T) {
		rb := openTestBuffer(t, t.TempDir(), 16)
		defer rb.Close()
		enqueueAll(t, rb, "a")

		runCtx, cancel := context.WithCancel(ctx)
		delivered := make(chan string, 1)
		done := make(chan error)
		go func() {
			done <- rb.Run(runCtx, func(_ context.Context, raw []byte) bool {
				delivered <- string(raw)
				return true
			})
		}()
		select {
		case got := <-delivered:
			assert.Equal(t, "a", got)
		case <-time.After(2 * time.Second):
			t.Fatal("buffer was never drained")
		}
		cancel()
		assert.NoError(t, <-done)
	})
}
