package scheduler

import "time"

type SchedulerOpt func(*Scheduler)

// WithTickLength sets the wall-clock duration of one scheduler tick.
func WithTickLength(tickLength time.Duration) SchedulerOpt {
	return func(s *Scheduler) {
		s.tickLength = tickLength
	}
}

// WithWorkers sets the number of general pool workers.
func WithWorkers(n int) SchedulerOpt {
	return func(s *Scheduler) {
		s.workers = n
	}
}

// WithQueueSize sets the queue size of both the pool and the serial lane.
func WithQueueSize(n int) SchedulerOpt {
	return func(s *Scheduler) {
		s.queueSize = n
	}
}

// WithObserver reports task failures and skipped windows.
func WithObserver(o Observer) SchedulerOpt {
	return func(s *Scheduler) {
		s.observer = o
	}
}

type TaskOpt func(*Handle, *Scheduler)

// OnSerial runs the task on the scheduler's single-worker lane.
func OnSerial() TaskOpt {
	return func(h *Handle, s *Scheduler) {
		h.exec = s.serial
	}
}

// OnExecutor runs the task on an arbitrary executor.
func OnExecutor(e Executor) TaskOpt {
	return func(h *Handle, _ *Scheduler) {
		h.exec = e
	}
}
