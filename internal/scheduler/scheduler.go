package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultTickLength = 600 * time.Millisecond
	DefaultQueueSize  = 1024
)

// Observer receives per-task outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	TaskFailed(name string)
	TaskSkipped(name string)
}

// Scheduler drives tick-based periodic work. It owns a general worker pool
// for asynchronous submissions and a serial lane on which world-mutating
// tasks run one at a time.
type Scheduler struct {
	tickLength time.Duration
	workers    int
	queueSize  int
	observer   Observer

	pool   *Pool
	serial *Pool

	mu     sync.Mutex
	tick   uint64
	tasks  []*Handle
	closed bool

	stop     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func New(opts ...SchedulerOpt) *Scheduler {
	s := &Scheduler{
		tickLength: DefaultTickLength,
		queueSize:  DefaultQueueSize,
		stop:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.workers < 1 {
		s.workers = 4
	}

	s.pool = NewPool("workers", s.workers, s.queueSize)
	s.serial = NewPool("serial", 1, s.queueSize)

	return s
}

// TickLength returns the wall-clock duration of one tick.
func (s *Scheduler) TickLength() time.Duration {
	return s.tickLength
}

// Now returns the number of ticks the clock has advanced.
func (s *Scheduler) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Pool returns the general worker pool.
func (s *Scheduler) Pool() *Pool {
	return s.pool
}

// Serial returns the single-worker lane.
func (s *Scheduler) Serial() *Pool {
	return s.serial
}

// Submit runs action on the general pool and returns immediately.
func (s *Scheduler) Submit(name string, action Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrShutdown
	}
	return s.pool.Submit(name, action)
}

// Schedule registers action to run no earlier than delay ticks from now and,
// when period is non-zero, once in every following period-tick window until
// the handle is cancelled or the scheduler shuts down. Windows that find the
// previous invocation still running are skipped, never queued.
func (s *Scheduler) Schedule(name string, action Action, delay, period uint64, opts ...TaskOpt) (*Handle, error) {
	h := &Handle{
		name:   name,
		action: action,
		exec:   s.pool,
		period: period,
	}
	for _, opt := range opts {
		opt(h, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShutdown
	}

	h.next = s.tick + delay
	s.tasks = append(s.tasks, h)

	// A zero delay means the task is due in the current tick.
	if delay == 0 {
		s.dispatch(h)
		if period == 0 {
			s.tasks = s.tasks[:len(s.tasks)-1]
		} else {
			h.next = s.tick + period
		}
	}

	return h, nil
}

// Start advances the clock once per tick length until ctx is done or the
// scheduler is shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.tickLength)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.step()
		}
	}
}

// step advances the clock by one tick and dispatches every due task.
func (s *Scheduler) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.tick++
	now := s.tick

	live := s.tasks[:0]
	for _, h := range s.tasks {
		if h.Cancelled() {
			continue
		}
		if h.next > now {
			live = append(live, h)
			continue
		}

		s.dispatch(h)

		if h.period == 0 {
			continue
		}
		// Jump to the first window after now; missed windows are dropped.
		h.next += h.period * ((now-h.next)/h.period + 1)
		live = append(live, h)
	}
	clear(s.tasks[len(live):])
	s.tasks = live
}

// dispatch hands one invocation of h to its executor. Caller holds s.mu.
func (s *Scheduler) dispatch(h *Handle) {
	ok, busy := h.claim()
	if !ok {
		if busy {
			s.skip(h)
		}
		return
	}

	err := h.exec.Execute(func() { s.invoke(h) })
	if err != nil {
		h.release()
		s.skip(h)
		if !errors.Is(err, ErrShutdown) {
			slog.Warn("scheduled task not dispatched", "task", h.name, "error", err)
		}
	}
}

func (s *Scheduler) skip(h *Handle) {
	h.skipped.Add(1)
	if s.observer != nil {
		s.observer.TaskSkipped(h.name)
	}
}

// invoke runs one invocation. Failures are recorded and logged; they never
// cancel the schedule.
func (s *Scheduler) invoke(h *Handle) {
	if !h.begin() {
		return
	}
	defer h.release()

	ctx := context.Background()
	if p, ok := h.exec.(*Pool); ok {
		ctx = p.ctx
	}

	run := h.runs.Add(1)
	err := runSafely(ctx, h.action)
	if err != nil {
		h.failures.Add(1)
		if s.observer != nil {
			s.observer.TaskFailed(h.name)
		}
		slog.ErrorContext(ctx, "scheduled task failed", "task", h.name, "run", run, "error", err)
	}
}

// CancelAll cancels every scheduled task while leaving both executors
// running, so that final work can still be submitted.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.tasks {
		h.Cancel()
	}
	s.tasks = nil
}

// RunSerial runs action on the serial lane and waits for it to finish. Work
// already queued on the lane runs first.
func (s *Scheduler) RunSerial(ctx context.Context, name string, action Action) error {
	result := make(chan error, 1)
	err := s.serial.Execute(func() {
		result <- runSafely(s.serial.ctx, action)
	})
	if err != nil {
		return fmt.Errorf("queueing %s: %w", name, err)
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the clock, cancels every scheduled task and drains both
// executors, waiting at most grace for each. It is safe to call repeatedly.
func (s *Scheduler) Shutdown(grace time.Duration) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for _, h := range s.tasks {
			h.Cancel()
		}
		s.tasks = nil
		s.mu.Unlock()

		close(s.stop)

		var errs []error
		if err := s.serial.Shutdown(grace); err != nil {
			errs = append(errs, err)
		}
		if err := s.pool.Shutdown(grace); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.stopErr = fmt.Errorf("shutting down scheduler: %w", errors.Join(errs...))
		}
	})
	return s.stopErr
}

// TicksFor converts a wall-clock duration into a whole number of ticks, never
// less than one.
func TicksFor(d time.Duration, tickLength time.Duration) uint64 {
	if tickLength <= 0 {
		return 1
	}
	n := uint64(d / tickLength)
	if n < 1 {
		return 1
	}
	return n
}
