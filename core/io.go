package core

import (
	"context"
	"runtime"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/najoast/syncrt/log"
)

// JobFunc is the body of an IO job. It runs on a background goroutine and
// receives the global context.
type JobFunc[S, C, U, R any] func(ctx context.Context, state S, callContext C, userContext U) (R, error)

type ioJob struct {
	run     func(ctx context.Context) (any, error)
	success func(result any)
	failure func(err error)

	result any
	err    error
}

// IOComponent runs async jobs with bounded concurrency and delivers their
// results on the owning actor during Tick.
type IOComponent struct {
	// global cancellation token
	ctx    context.Context
	logger log.Logger
	sync   *Synchronizer
	limit  *atomic.Int64

	mu        sync.Mutex
	waiting   []*ioJob
	active    goset.Set[*ioJob]
	completed *queue[*ioJob]
}

var (
	_ RunnableComponent = (*IOComponent)(nil)
	_ AsyncComponent    = (*IOComponent)(nil)
	_ Quiescer          = (*IOComponent)(nil)
)

// NewIOComponent creates an IOComponent. A concurrency below one defaults
// to the number of CPUs.
func NewIOComponent(ctx context.Context, concurrency int, logger log.Logger) *IOComponent {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &IOComponent{
		ctx:       ctx,
		logger:    logger,
		sync:      NewSynchronizer(),
		limit:     atomic.NewInt64(int64(concurrency)),
		active:    goset.NewSet[*ioJob](),
		completed: newQueue[*ioJob](),
	}
}

// StartJob runs fn in the background and later calls success or failure
// on the owning actor. When the global context is already cancelled,
// failure is called synchronously and nothing is queued.
func StartJob[S, C, U, R any](io *IOComponent, state S, callContext C, userContext U,
	fn JobFunc[S, C, U, R], success func(S, C, U, R), failure func(S, C, U, error)) {
	if err := io.ctx.Err(); err != nil {
		if failure != nil {
			failure(state, callContext, userContext, err)
		}
		return
	}

	job := &ioJob{
		run: func(ctx context.Context) (any, error) {
			return fn(ctx, state, callContext, userContext)
		},
		success: func(result any) {
			if success != nil {
				r, _ := result.(R)
				success(state, callContext, userContext, r)
			}
		},
		failure: func(err error) {
			if failure != nil {
				failure(state, callContext, userContext, err)
			}
		},
	}
	io.enqueue(job)
}

func (io *IOComponent) enqueue(job *ioJob) {
	io.mu.Lock()
	if int64(io.active.Cardinality()) < io.limit.Load() {
		io.active.Add(job)
		io.mu.Unlock()
		go io.execute(job)
		return
	}
	io.waiting = append(io.waiting, job)
	io.mu.Unlock()
}

func (io *IOComponent) execute(job *ioJob) {
	defer func() {
		if r := recover(); r != nil {
			job.result, job.err = nil, recoverError(r)
		}
		io.active.Remove(job)
		io.completed.Push(job)
		io.sync.Set()
	}()
	job.result, job.err = job.run(io.ctx)
}

// startWaiting starts the oldest waiting job if the pool has room.
func (io *IOComponent) startWaiting() {
	io.mu.Lock()
	if len(io.waiting) == 0 || int64(io.active.Cardinality()) >= io.limit.Load() {
		io.mu.Unlock()
		return
	}
	job := io.waiting[0]
	io.waiting[0] = nil
	io.waiting = io.waiting[1:]
	io.active.Add(job)
	io.mu.Unlock()

	go io.execute(job)
}

// Tick delivers completed jobs while time remains. For each completed job
// it first starts one waiting job, then runs exactly one continuation.
func (io *IOComponent) Tick(end time.Time) TickResult {
	for {
		if io.completed.Len() == 0 {
			return TickWait
		}
		if !enoughTime(end) {
			return TickYield
		}
		job, ok := io.completed.Pop()
		if !ok {
			return TickWait
		}
		io.startWaiting()
		io.complete(job)
	}
}

func (io *IOComponent) complete(job *ioJob) {
	if job.err != nil {
		io.fail(job, job.err)
		return
	}
	if err := io.succeed(job); err != nil {
		io.logger.Errorf("io success callback failed: %v", err)
		io.fail(job, errors.Wrap(err, "success callback failed"))
	}
}

func (io *IOComponent) succeed(job *ioJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
		}
	}()
	job.success(job.result)
	return nil
}

func (io *IOComponent) fail(job *ioJob, cause error) {
	defer func() {
		if r := recover(); r != nil {
			io.logger.Errorf("io failure callback failed: %v", recoverError(r))
		}
	}()
	job.failure(cause)
}

// WaitAsync blocks until a job completes. After cancellation it fails
// every waiting job and reports Completed once no job is running.
func (io *IOComponent) WaitAsync(ctx context.Context) (WaitResult, error) {
	err := io.sync.Wait(ctx)
	if err == nil {
		return WaitContinuing, nil
	}

	io.cancelWaiting(err)
	if io.active.Cardinality() == 0 {
		return WaitCompleted, nil
	}

	// running jobs must observe the token on their own
	_ = io.sync.Wait(context.Background())
	return WaitContinuing, nil
}

func (io *IOComponent) cancelWaiting(cause error) {
	io.mu.Lock()
	waiting := io.waiting
	io.waiting = nil
	io.mu.Unlock()

	for _, job := range waiting {
		job.err = cause
		io.completed.Push(job)
	}
}

// SetConcurrency changes the limit. Raising it starts waiting jobs at once.
func (io *IOComponent) SetConcurrency(n int) {
	if n < 1 {
		n = runtime.NumCPU()
	}
	io.limit.Store(int64(n))

	for {
		io.mu.Lock()
		room := len(io.waiting) > 0 && int64(io.active.Cardinality()) < io.limit.Load()
		io.mu.Unlock()
		if !room {
			return
		}
		io.startWaiting()
	}
}

// Concurrency returns the current limit.
func (io *IOComponent) Concurrency() int {
	return int(io.limit.Load())
}

// ActiveCount returns the number of running jobs.
func (io *IOComponent) ActiveCount() int {
	return io.active.Cardinality()
}

// WaitingCount returns the number of jobs queued behind the limit.
func (io *IOComponent) WaitingCount() int {
	io.mu.Lock()
	defer io.mu.Unlock()
	return len(io.waiting)
}

// IsQuiescent reports whether no job is waiting, running or undelivered.
func (io *IOComponent) IsQuiescent() bool {
	return io.WaitingCount() == 0 && io.ActiveCount() == 0 && io.completed.Len() == 0
}
