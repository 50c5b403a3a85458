package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/leadflow/pkg/logging"
)

type recordingSink struct {
	mu       sync.Mutex
	failures map[string]int
}

func (s *recordingSink) TaskFailed(task, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]int)
	}
	s.failures[task+":"+reason]++
}

func (s *recordingSink) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[key]
}

func TestRunnerRunsTasksAndWaitsOnShutdown(t *testing.T) {
	r := NewRunner(4, time.Second, logging.New("error"), nil)
	var done atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Go("job", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		}))
	}
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, int32(10), done.Load())
	assert.ErrorIs(t, r.Go("late", func(context.Context) error { return nil }), ErrStopped)
}

func TestRunnerCapsConcurrency(t *testing.T) {
	r := NewRunner(2, time.Second, logging.New("error"), nil)
	var current, peak atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, r.Go("job", func(ctx context.Context) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		}))
	}
	require.NoError(t, r.Shutdown(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunnerReportsFailures(t *testing.T) {
	sink := &recordingSink{}
	r := NewRunner(2, 20*time.Millisecond, logging.New("error"), sink)

	require.NoError(t, r.Go("boom", func(context.Context) error { return errors.New("provider down") }))
	require.NoError(t, r.Go("crash", func(context.Context) error { panic("nil map") }))
	require.NoError(t, r.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, r.Shutdown(context.Background()))

	assert.Equal(t, 1, sink.count("boom:error"))
	assert.Equal(t, 1, sink.count("crash:panic"))
	assert.Equal(t, 1, sink.count("slow:timeout"))
}

func TestShutdownDeadlineCancelsTasks(t *testing.T) {
	r := NewRunner(1, time.Minute, logging.New("error"), nil)
	started := make(chan struct{})
	var canceled atomic.Bool
	require.NoError(t, r.Go("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
		return nil
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
	assert.True(t, canceled.Load())
}
