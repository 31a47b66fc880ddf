package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when work is submitted to a stopped worker or runner
	ErrSchedulerNotRunning = errors.New("scheduler not running")

	// ErrJobQueueFull is returned when a submit would block on the report queue
	ErrJobQueueFull = errors.New("report job queue full")

	// ErrNoProcessor is returned when the worker is started without a registered processor
	ErrNoProcessor = errors.New("no report processor registered")

	// ErrUnknownJob is returned for job names the runner does not know
	ErrUnknownJob = errors.New("unknown scheduled job")
)
