package job

import (
	"context"
	"errors"
	"time"
)

// Registry errors.
var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrDuplicateJob = errors.New("duplicate job id")
	ErrNotRunning   = errors.New("job is not running")
	ErrJobAborted   = errors.New("job was aborted")
)

// Registry owns every job created during the process lifetime.
type Registry interface {
	Insert(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	// Attach records the live process; it fails with ErrJobAborted once the job is aborted.
	Attach(ctx context.Context, jobID string, proc Process) error
	Detach(ctx context.Context, jobID string)
	// MarkRunning moves a pending job to running and reports whether it did.
	MarkRunning(ctx context.Context, jobID string, at time.Time) (bool, error)
	SetStats(ctx context.Context, jobID string, stats Counters) error
	SetRecursionStats(ctx context.Context, jobID string, rstats Counters) error
	// Abort moves an active job to aborted and returns the live process, if any.
	Abort(ctx context.Context, jobID string, at time.Time) (Job, Process, error)
	// Finish resolves a job after its run attempt.
	Finish(ctx context.Context, jobID string, at time.Time) (Job, error)
	List(ctx context.Context) ([]Job, error)
}

// Process is the handle of a live worker process.
type Process interface {
	// Terminate requests a graceful exit. It is a no-op once the process exited.
	Terminate() error
	Pid() int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// ReplyFunc sends one line back to the user who issued a command.
type ReplyFunc func(message string)
