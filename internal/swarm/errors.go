package swarm

import "errors"

// Submission errors returned synchronously before a task enters the queue.
var (
	// ErrInvalidPriority rejects priorities outside [MinPriority, MaxPriority].
	ErrInvalidPriority = errors.New("task priority must be between 1 and 10")

	// ErrDuplicateTaskID rejects an explicit task id that already exists.
	ErrDuplicateTaskID = errors.New("task id already exists")

	// ErrUnknownKind rejects a task whose kind matches no registered drone kind.
	ErrUnknownKind = errors.New("unknown drone kind")
)
