// Package worker provides the bounded worker pool production runs execute in.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/autoflow/pkg/models"
)

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// ErrJobPanicked is the handle error of a job whose function panicked.
var ErrJobPanicked = errors.New("worker job panicked")

// TaskFunc is the unit of work a job runs.
type TaskFunc func(ctx context.Context) (*models.ExecutionResult, error)

// PoolMetrics tracks worker pool operational metrics.
type PoolMetrics struct {
	Workers   int   `json:"workers"`
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

type job struct {
	ctx    context.Context
	fn     TaskFunc
	handle *Handle
}

// Pool runs jobs on a fixed number of workers. When every worker is busy new jobs wait
// in an unbounded FIFO queue; nothing is dropped.
type Pool struct {
	logger  *slog.Logger
	size    int
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*job
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	metrics PoolMetrics
}

// NewPool creates a pool with the given number of workers and starts them.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		logger: logger.With("module", "worker_pool"),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)

	for i := range size {
		go p.work(i)
	}

	return p
}

// Submit enqueues a job and returns its completion handle without waiting. The job keeps
// the values of ctx but not its cancellation, so it outlives the submitting request.
func (p *Pool) Submit(ctx context.Context, id string, fn TaskFunc) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolShutdown
	}

	handle := newHandle(id)
	p.queue = append(p.queue, &job{ctx: context.WithoutCancel(ctx), fn: fn, handle: handle})

	atomic.AddInt64(&p.metrics.Submitted, 1)
	atomic.AddInt64(&p.metrics.Queued, 1)

	p.cond.Signal()

	return handle, nil
}

func (p *Pool) work(worker int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}

		if len(p.queue) == 0 {
			p.mu.Unlock()

			return
		}

		next := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		atomic.AddInt64(&p.metrics.Queued, -1)
		p.run(worker, next)
	}
}

func (p *Pool) run(worker int, j *job) {
	atomic.AddInt64(&p.metrics.Active, 1)
	defer atomic.AddInt64(&p.metrics.Active, -1)

	ctx, cancel := context.WithCancel(j.ctx)
	stop := context.AfterFunc(p.ctx, cancel)

	defer func() {
		stop()
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.metrics.Panics, 1)
			atomic.AddInt64(&p.metrics.Failed, 1)
			p.logger.Error("Worker job panicked", "worker", worker, "job_id", j.handle.ID(), "panic", r)
			j.handle.complete(nil, fmt.Errorf("%w: %v", ErrJobPanicked, r))
		}
	}()

	result, err := j.fn(ctx)
	if err != nil {
		atomic.AddInt64(&p.metrics.Failed, 1)
	} else {
		atomic.AddInt64(&p.metrics.Completed, 1)
	}

	j.handle.complete(result, err)
}

// Shutdown stops accepting jobs and waits for queued and running jobs to finish. When
// ctx ends first, running jobs are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	finished := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancel()

		return nil
	case <-ctx.Done():
		p.cancel()

		return ctx.Err()
	}
}

// Metrics returns a snapshot of the current pool metrics.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Workers:   p.size,
		Queued:    atomic.LoadInt64(&p.metrics.Queued),
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Submitted: atomic.LoadInt64(&p.metrics.Submitted),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}
