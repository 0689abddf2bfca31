package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Executor runs a function asynchronously. Execute must not block on the
// function itself; it either accepts the work or returns an error.
type Executor interface {
	Execute(fn func()) error
}

// Action is a unit of asynchronous work. The context is cancelled when the
// owning pool is forced down after its shutdown grace period.
type Action func(ctx context.Context) error

// Pool is a fixed set of worker goroutines fed from a bounded queue. A pool
// with a single worker executes its work strictly in submission order.
type Pool struct {
	name string
	jobs chan func()

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// NewPool starts workers goroutines that drain a queue of the given size.
func NewPool(name string, workers int, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		jobs:   make(chan func(), queue),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}

	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for fn := range p.jobs {
		fn()
	}
}

// Name returns the pool name used in log output.
func (p *Pool) Name() string {
	return p.name
}

// Execute queues fn without waiting for it to run.
func (p *Pool) Execute(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrShutdown
	}

	select {
	case p.jobs <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit queues an action and returns immediately. Errors and panics raised
// by the action are logged and never reach the worker loop.
func (p *Pool) Submit(name string, action Action) error {
	return p.Execute(func() {
		if err := runSafely(p.ctx, action); err != nil {
			slog.ErrorContext(p.ctx, "submitted action failed", "pool", p.name, "action", name, "error", err)
		}
	})
}

// Shutdown stops accepting work and waits up to grace for queued and running
// work to finish. Work still running after grace has its context cancelled
// and ErrShutdownTimeout is returned. Calling Shutdown again returns the
// first result.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			slog.Warn("forcing pool shutdown", "pool", p.name, "grace", grace)
			p.stopErr = fmt.Errorf("pool %s: %w", p.name, ErrShutdownTimeout)
		}
		p.cancel()
	})
	return p.stopErr
}

// runSafely invokes action, converting a panic into an error.
func runSafely(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}
