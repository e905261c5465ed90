// Package job defines the archival job model shared across subsystems.
package job

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// Status represents the lifecycle state of an archive job.
type Status string

// Job status values. Finished and Aborted are terminal.
const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusAborted  Status = "aborted"
	StatusFinished Status = "finished"
)

// String returns the status name used in chat replies.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusAborted || s == StatusFinished
}

// IsActive reports whether the job can still be aborted.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusAborted
	case StatusRunning:
		return to == StatusFinished || to == StatusAborted
	default:
		return false
	}
}

// Policy is the recursion policy token handed to the worker.
type Policy string

// Recursion policies understood by the worker.
const (
	PolicyNone   Policy = "0"
	PolicyOne    Policy = "1"
	PolicyPrefix Policy = "prefix"
)

// Policies lists the accepted policy tokens in usage order.
var Policies = []Policy{PolicyNone, PolicyOne, PolicyPrefix}

// ParsePolicy validates a recursion policy token.
func ParsePolicy(raw string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid choice: %q (choose from '0', '1', 'prefix')", raw)
}

// Concurrency bounds for a single job.
const (
	MinConcurrency = 1
	MaxConcurrency = 4
)

// Params captures the validated options of an archive request.
type Params struct {
	URL         string `json:"url"`
	Concurrency int    `json:"concurrency"`
	Recursive   Policy `json:"recursive"`
}

// Validate enforces the per-job option bounds.
func (p Params) Validate() error {
	if p.URL == "" {
		return errors.New("url is required")
	}
	if p.Concurrency < MinConcurrency || p.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency must be in [%d,%d], got %d", MinConcurrency, MaxConcurrency, p.Concurrency)
	}
	if _, err := ParsePolicy(string(p.Recursive)); err != nil {
		return err
	}
	return nil
}

// Counters is a worker-reported counter snapshot. Updates replace the whole map.
type Counters map[string]float64

// Get returns the counter value or zero when absent.
func (c Counters) Get(key string) float64 {
	return c[key]
}

// Int returns the counter truncated to an integer.
func (c Counters) Int(key string) int64 {
	return int64(c[key])
}

// Clone returns an independent copy.
func (c Counters) Clone() Counters {
	if c == nil {
		return nil
	}
	return maps.Clone(c)
}

// Job is one user-requested archival task.
type Job struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Owner      string     `json:"owner"`
	Params     Params     `json:"params"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stats      Counters   `json:"stats"`
	RStats     Counters   `json:"rstats"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j Job) Clone() Job {
	cp := j
	cp.Stats = j.Stats.Clone()
	cp.RStats = j.RStats.Clone()
	if j.StartedAt != nil {
		ts := *j.StartedAt
		cp.StartedAt = &ts
	}
	if j.FinishedAt != nil {
		ts := *j.FinishedAt
		cp.FinishedAt = &ts
	}
	return cp
}

// Duration returns the wall time between creation and the terminal transition.
func (j Job) Duration() (time.Duration, bool) {
	if j.FinishedAt == nil {
		return 0, false
	}
	return j.FinishedAt.Sub(j.CreatedAt), true
}

// Stat keys reported by the worker.
const (
	StatCrashed  = "crashed"
	StatRequests = "requests"
	StatFailed   = "failed"
	StatBytesRcv = "bytesRcv"
	RStatHave    = "have"
	RStatPending = "pending"
)
