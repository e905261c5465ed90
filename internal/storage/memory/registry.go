// Package memory provides the in-memory job registry.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/archivebot/internal/job"
)

// Registry keeps every job for the lifetime of the process. Entries are never
// evicted.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

type entry struct {
	job  job.Job
	proc job.Process
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*entry),
	}
}

// Insert stores a new job. Re-using an id fails with job.ErrDuplicateJob.
func (r *Registry) Insert(_ context.Context, j job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[j.ID]; exists {
		return fmt.Errorf("insert %s: %w", j.ID, job.ErrDuplicateJob)
	}
	r.jobs[j.ID] = &entry{job: j.Clone()}
	return nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(_ context.Context, jobID string) (job.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return job.Job{}, job.ErrUnknownJob
	}
	return e.job.Clone(), nil
}

// List returns snapshots of all jobs ordered by creation time.
func (r *Registry) List(_ context.Context) ([]job.Job, error) {
	r.mu.RLock()
	out := make([]job.Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

// Attach records the live worker process for a job.
func (r *Registry) Attach(_ context.Context, jobID string, proc job.Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return job.ErrUnknownJob
	}
	if !e.job.Status.IsActive() {
		return job.ErrJobAborted
	}
	e.proc = proc
	return nil
}

// Detach clears the process handle once the worker exited.
func (r *Registry) Detach(_ context.Context, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[jobID]; ok {
		e.proc = nil
	}
}

// MarkRunning performs the pending → running transition.
func (r *Registry) MarkRunning(_ context.Context, jobID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return false, job.ErrUnknownJob
	}
	if e.job.Status != job.StatusPending {
		return false, nil
	}
	e.job.Status = job.StatusRunning
	e.job.StartedAt = pointerTime(at)
	return true, nil
}

// SetStats replaces the worker counters.
func (r *Registry) SetStats(_ context.Context, jobID string, stats job.Counters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return job.ErrUnknownJob
	}
	e.job.Stats = stats.Clone()
	return nil
}

// SetRecursionStats replaces the recursion counters.
func (r *Registry) SetRecursionStats(_ context.Context, jobID string, rstats job.Counters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return job.ErrUnknownJob
	}
	e.job.RStats = rstats.Clone()
	return nil
}

// Abort moves an active job to aborted. The returned process, when non-nil,
// still has to be terminated by the caller.
func (r *Registry) Abort(_ context.Context, jobID string, at time.Time) (job.Job, job.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return job.Job{}, nil, job.ErrUnknownJob
	}
	if !job.CanTransition(e.job.Status, job.StatusAborted) {
		return e.job.Clone(), nil, job.ErrNotRunning
	}
	e.job.Status = job.StatusAborted
	e.job.FinishedAt = pointerTime(at)
	return e.job.Clone(), e.proc, nil
}

// Finish resolves a job after its run attempt: running becomes finished, a job
// that never produced output becomes aborted, terminal jobs are left alone.
func (r *Registry) Finish(_ context.Context, jobID string, at time.Time) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return job.Job{}, job.ErrUnknownJob
	}
	e.proc = nil
	switch e.job.Status {
	case job.StatusRunning:
		e.job.Status = job.StatusFinished
		e.job.FinishedAt = pointerTime(at)
	case job.StatusPending:
		e.job.Status = job.StatusAborted
		e.job.FinishedAt = pointerTime(at)
	}
	return e.job.Clone(), nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
