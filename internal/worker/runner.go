// Package worker runs post-acknowledgement work in the background, with a
// concurrency cap, a per-task timeout, and its own failure sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wolfman30/leadflow/pkg/logging"
)

// ErrStopped is returned by Go after Shutdown has begun.
var ErrStopped = errors.New("worker: runner stopped")

// FailureSink records failed tasks. *metrics.PipelineMetrics satisfies it.
type FailureSink interface {
	TaskFailed(task, reason string)
}

// Task is a unit of background work. ctx carries the task deadline.
type Task func(ctx context.Context) error

// Runner executes tasks detached from the request that scheduled them.
type Runner struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *logging.Logger
	sink    FailureSink

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRunner creates a runner allowing at most concurrency tasks at once.
func NewRunner(concurrency int, timeout time.Duration, logger *logging.Logger, sink FailureSink) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		logger:  logger.Component("worker"),
		sink:    sink,
		base:    base,
		cancel:  cancel,
	}
}

// Go schedules fn without blocking the caller. Tasks wait for a free slot.
func (r *Runner) Go(name string, fn Task) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.base, 1); err != nil {
			r.fail(name, "canceled", err)
			return
		}
		defer r.sem.Release(1)
		r.run(name, fn)
	}()
	return nil
}

func (r *Runner) run(name string, fn Task) {
	ctx, cancel := context.WithTimeout(r.base, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(name, "panic", fmt.Errorf("panic: %v", rec))
			r.logger.Debug("task panic stack", "task", name, "stack", string(debug.Stack()))
		}
	}()

	if err := fn(ctx); err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		r.fail(name, reason, err)
		return
	}
	r.logger.Debug("task completed", "task", name, "duration_ms", time.Since(start).Milliseconds())
}

func (r *Runner) fail(name, reason string, err error) {
	r.logger.Error("background task failed", "task", name, "reason", reason, "error", err)
	if r.sink != nil {
		r.sink.TaskFailed(name, reason)
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones. If ctx ends
// first, running tasks are canceled and ctx's error is returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
