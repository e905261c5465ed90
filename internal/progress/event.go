// Package progress defines the job lifecycle events emitted by the scheduler
// and the worker supervisor.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/archivebot/internal/job"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobQueued  Stage = "JOB_QUEUED"
	StageJobStart   Stage = "JOB_START"
	StageJobStats   Stage = "JOB_STATS"
	StageJobDone    Stage = "JOB_DONE"
	StageJobAborted Stage = "JOB_ABORTED"
)

// Event captures a single job lifecycle milestone.
type Event struct {
	// JobID uniquely identifies the job using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// URL is the archive target.
	URL string
	// Owner is the nick that requested the job.
	Owner string
	// Bytes is the last reported received byte total.
	Bytes int64
	// Requests is the last reported request total.
	Requests int64
	// Failed is the last reported failed request total.
	Failed int64
	// PagesDone is the last reported number of finished pages.
	PagesDone int64
	// Dur is the job runtime for terminal stages.
	Dur time.Duration
	// Note carries low-volume context such as who aborted the job.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobQueued, StageJobStart, StageJobStats, StageJobDone, StageJobAborted:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// IsTerminal reports whether the event closes a job.
func (e Event) IsTerminal() bool {
	return e.Stage == StageJobDone || e.Stage == StageJobAborted
}

// JobUUID converts the binary job ID to uuid.UUID.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ForJob builds an event for stage from a job snapshot. Counters are taken
// from the snapshot; Dur is set once the job has finished.
func ForJob(stage Stage, j job.Job, at time.Time) Event {
	evt := Event{
		TS:        at.UTC(),
		Stage:     stage,
		URL:       j.URL,
		Owner:     j.Owner,
		Bytes:     j.Stats.Int(job.StatBytesRcv),
		Requests:  j.Stats.Int(job.StatRequests),
		Failed:    j.Stats.Int(job.StatFailed),
		PagesDone: j.RStats.Int(job.RStatHave),
	}
	if id, err := uuid.Parse(j.ID); err == nil {
		evt.JobID = UUIDToBytes(id)
	}
	if d, ok := j.Duration(); ok {
		evt.Dur = d
	}
	return evt
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
