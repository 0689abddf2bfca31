package scheduler

import (
	"sync"
	"sync/atomic"
)

// Handle is a cancellable reference to a scheduled task.
type Handle struct {
	name   string
	action Action
	exec   Executor
	period uint64

	// next is the scheduler tick of the next window; guarded by Scheduler.mu.
	next uint64

	mu        sync.Mutex
	cancelled bool
	inFlight  bool

	runs     atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

// Name returns the task name given to Schedule.
func (h *Handle) Name() string {
	return h.name
}

// Runs is the number of invocations that have started.
func (h *Handle) Runs() uint64 {
	return h.runs.Load()
}

// Failures is the number of invocations that returned an error or panicked.
func (h *Handle) Failures() uint64 {
	return h.failures.Load()
}

// Skipped is the number of due windows dropped because the previous
// invocation was still running or the executor refused the work.
func (h *Handle) Skipped() uint64 {
	return h.skipped.Load()
}

// Cancel prevents every future invocation. An invocation that has already
// started is allowed to finish.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// claim marks the handle as in flight. It fails when the task is cancelled or
// its previous invocation has not finished.
func (h *Handle) claim() (ok bool, busy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return false, false
	}
	if h.inFlight {
		return false, true
	}
	h.inFlight = true
	return true, false
}

// begin is the last cancellation check before the action runs.
func (h *Handle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		h.inFlight = false
		return false
	}
	return true
}

func (h *Handle) release() {
	h.mu.Lock()
	h.inFlight = false
	h.mu.Unlock()
}
