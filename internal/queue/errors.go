package queue

import "errors"

var (
	// ErrUnknownDependency reports an enqueue that names a predecessor job the
	// store has never seen.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrJobNotFound reports an operation addressed to a missing job.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotStarted reports a completion for a job that is not running.
	ErrNotStarted = errors.New("job not started")
)
