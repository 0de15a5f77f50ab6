package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestSchedulerRunsJobs(t *testing.T) {
	t.Parallel()

	s := New()
	var count atomic.Int64
	s.Register("counter", time.Millisecond*20, func(ctx context.Context) error {
		count.Inc()
		return nil
	})
	s.Run()

	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, time.Second*5, time.Millisecond*10)

	s.Shutdown()
	settled := count.Load()
	time.Sleep(time.Millisecond * 100)
	require.Equal(t, settled, count.Load())
}

func TestSchedulerShutdownIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	s.Register("noop", time.Hour, func(ctx context.Context) error { return nil })
	s.Run()

	s.Shutdown()
	s.Shutdown()
}

func TestSchedulerCancelsContextOnShutdown(t *testing.T) {
	t.Parallel()

	s := New()
	started := make(chan struct{})
	var cancelled atomic.Bool
	s.Register("blocker", time.Millisecond*10, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	s.Run()

	<-started
	s.Shutdown()
	require.True(t, cancelled.Load())
}
