package scheduler

import "errors"

var (
	ErrShutdown        = errors.New("scheduler is shut down")
	ErrQueueFull       = errors.New("work queue is full")
	ErrShutdownTimeout = errors.New("workers still busy after shutdown grace period")
)
