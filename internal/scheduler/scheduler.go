// Package scheduler admits archive jobs under a global concurrency bound and
// drives them through their lifecycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/archivebot/internal/job"
	"github.com/JakeFAU/archivebot/internal/metrics"
	"github.com/JakeFAU/archivebot/internal/progress"
	"github.com/JakeFAU/archivebot/internal/telemetry"
)

// ErrClosed is returned by Submit once Shutdown started.
var ErrClosed = errors.New("scheduler is shutting down")

// Runner executes one admitted job and returns once its process has exited.
type Runner interface {
	Run(ctx context.Context, j job.Job) error
}

// Config controls admission.
type Config struct {
	// MaxConcurrent bounds the number of live worker processes.
	MaxConcurrent int
}

// Scheduler owns job admission. Each submitted job runs on its own goroutine
// that waits for a slot, runs the worker and reports the final status.
type Scheduler struct {
	registry job.Registry
	runner   Runner
	ids      job.IDGenerator
	clock    job.Clock
	events   progress.Emitter
	logger   *zap.Logger
	tracer   trace.Tracer
	slots    *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Scheduler. MaxConcurrent values below one are raised to one.
func New(
	cfg Config,
	registry job.Registry,
	runner Runner,
	ids job.IDGenerator,
	clock job.Clock,
	events progress.Emitter,
	logger *zap.Logger,
) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if events == nil {
		events = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		registry: registry,
		runner:   runner,
		ids:      ids,
		clock:    clock,
		events:   events,
		logger:   logger,
		tracer:   telemetry.Tracer(),
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit registers a pending job, sends the queued acknowledgment through
// reply and starts the job in the background. reply later receives the final
// status line. A duplicate job id panics.
func (s *Scheduler) Submit(ctx context.Context, params job.Params, owner string, reply job.ReplyFunc) (job.Job, error) {
	if err := params.Validate(); err != nil {
		return job.Job{}, fmt.Errorf("invalid job params: %w", err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return job.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	j := job.Job{
		ID:        id,
		URL:       params.URL,
		Owner:     owner,
		Params:    params,
		Status:    job.StatusPending,
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return job.Job{}, ErrClosed
	}
	if err := s.registry.Insert(ctx, j); err != nil {
		s.mu.Unlock()
		if errors.Is(err, job.ErrDuplicateJob) {
			panic(fmt.Sprintf("scheduler: job id %s reused", id))
		}
		return job.Job{}, fmt.Errorf("register job: %w", err)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("job queued",
		zap.String("job_id", id),
		zap.String("user", owner),
		zap.String("url", params.URL),
		zap.Int("concurrency", params.Concurrency),
		zap.String("recursive", string(params.Recursive)),
	)
	metrics.ObserveArchiveRequest(params.URL)
	reply(job.FormatQueued(j))
	s.events.Emit(progress.ForJob(progress.StageJobQueued, j, j.CreatedAt))

	go s.run(j, reply)
	return j.Clone(), nil
}

func (s *Scheduler) run(j job.Job, reply job.ReplyFunc) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("job_id", j.ID))
	ctx, span := s.tracer.Start(s.baseCtx, "job.run", trace.WithAttributes(
		attribute.String("job.id", j.ID),
		attribute.String("job.url", j.URL),
		attribute.Int("job.concurrency", j.Params.Concurrency),
	))
	defer span.End()

	if err := s.slots.Acquire(s.baseCtx, 1); err != nil {
		logger.Info("job stopped waiting for a slot", zap.Error(err))
		s.finish(context.Background(), j.ID, reply, logger, span)
		return
	}
	metrics.IncSlotsInUse()
	s.spawn(ctx, j.ID, logger, span)
	s.slots.Release(1)
	metrics.DecSlotsInUse()

	s.finish(ctx, j.ID, reply, logger, span)
}

// spawn runs the worker unless the job was aborted while it waited.
func (s *Scheduler) spawn(ctx context.Context, jobID string, logger *zap.Logger, span trace.Span) {
	snap, err := s.registry.Get(ctx, jobID)
	if err != nil {
		logger.Error("load admitted job failed", zap.Error(err))
		return
	}
	if snap.Status.IsTerminal() {
		logger.Info("job aborted before start, skipping worker")
		span.AddEvent("skipped")
		return
	}
	logger.Info("job admitted")
	if err := s.runner.Run(ctx, snap); err != nil {
		logger.Error("worker run failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (s *Scheduler) finish(ctx context.Context, jobID string, reply job.ReplyFunc, logger *zap.Logger, span trace.Span) {
	now := s.clock.Now()
	final, err := s.registry.Finish(ctx, jobID, now)
	if err != nil {
		logger.Error("finish job failed", zap.Error(err))
		return
	}
	span.SetAttributes(attribute.String("job.status", final.Status.String()))
	stage := progress.StageJobDone
	if final.Status == job.StatusAborted {
		stage = progress.StageJobAborted
	}
	logger.Info("job finished", zap.String("status", final.Status.String()))
	s.events.Emit(progress.ForJob(stage, final, now))
	reply(job.FormatStatus(final))
}

// Abort moves a pending or running job to aborted and sends SIGTERM to its
// worker. It returns job.ErrUnknownJob or job.ErrNotRunning otherwise.
func (s *Scheduler) Abort(ctx context.Context, jobID, user string) (job.Job, error) {
	aborted, proc, err := s.registry.Abort(ctx, jobID, s.clock.Now())
	if err != nil {
		return aborted, fmt.Errorf("abort %s: %w", jobID, err)
	}
	logger := s.logger.With(zap.String("job_id", jobID), zap.String("user", user))
	if proc != nil {
		logger.Info("job aborted, terminating worker", zap.Int("pid", proc.Pid()))
		if err := proc.Terminate(); err != nil {
			logger.Warn("terminate worker failed", zap.Error(err))
		}
	} else {
		logger.Info("job aborted")
	}
	return aborted, nil
}

// Status returns a snapshot of the job.
func (s *Scheduler) Status(ctx context.Context, jobID string) (job.Job, error) {
	j, err := s.registry.Get(ctx, jobID)
	if err != nil {
		return job.Job{}, fmt.Errorf("status %s: %w", jobID, err)
	}
	return j, nil
}

// Jobs returns snapshots of every job ordered by creation.
func (s *Scheduler) Jobs(ctx context.Context) ([]job.Job, error) {
	jobs, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Shutdown refuses new jobs, aborts every active job and waits for all job
// goroutines to report, or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	jobs, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs for shutdown: %w", err)
	}
	for _, j := range jobs {
		if !j.Status.IsActive() {
			continue
		}
		if _, err := s.Abort(ctx, j.ID, "shutdown"); err != nil && !errors.Is(err, job.ErrNotRunning) {
			s.logger.Warn("abort on shutdown failed", zap.String("job_id", j.ID), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown wait: %w", ctx.Err())
	}
}
