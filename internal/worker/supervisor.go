// Package worker spawns and supervises crawl worker processes and folds their
// progress output into the job registry.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/job"
	"github.com/JakeFAU/archivebot/internal/progress"
)

// Config controls how worker processes are launched.
type Config struct {
	// Command is the worker executable followed by any fixed leading arguments.
	Command []string
	// TempDir is passed as --tempdir.
	TempDir string
	// DestDir receives the archives and is the working directory of the
	// worker. Relative directories are resolved against the bot's working
	// directory before the worker is started.
	DestDir string
	// Env is appended to the inherited environment.
	Env []string
}

// Supervisor runs one worker process per job.
type Supervisor struct {
	cfg      Config
	registry job.Registry
	clock    job.Clock
	events   progress.Emitter
	logger   *zap.Logger
}

// NewSupervisor constructs a Supervisor.
func NewSupervisor(
	cfg Config,
	registry job.Registry,
	clock job.Clock,
	events progress.Emitter,
	logger *zap.Logger,
) *Supervisor {
	if events == nil {
		events = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.TempDir = absDir(cfg.TempDir)
	cfg.DestDir = absDir(cfg.DestDir)
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		clock:    clock,
		events:   events,
		logger:   logger,
	}
}

// absDir resolves dir against the working directory. Empty or unresolvable
// values are returned unchanged.
func absDir(dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// Args returns the worker argument list for j, excluding Config.Command.
func (s *Supervisor) Args(j job.Job) []string {
	return []string{
		j.URL,
		"--tempdir", s.cfg.TempDir,
		"--prefix", j.ID + "-{host}-{date}-",
		"--policy", string(j.Params.Recursive),
		"--concurrency", strconv.Itoa(j.Params.Concurrency),
		s.cfg.DestDir,
	}
}

// Run spawns the worker for j and blocks until the process exited and its
// output was fully consumed. The exit status is logged and never changes
// the job status. An error is returned only when the process could not be
// started.
func (s *Supervisor) Run(ctx context.Context, j job.Job) error {
	if len(s.cfg.Command) == 0 {
		return errors.New("worker command is not configured")
	}
	logger := s.logger.With(zap.String("job_id", j.ID))

	argv := append(append([]string(nil), s.cfg.Command[1:]...), s.Args(j)...)
	cmd := exec.Command(s.cfg.Command[0], argv...)
	cmd.Dir = s.cfg.DestDir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	proc := &process{cmd: cmd}
	logger.Info("worker started", zap.Int("pid", proc.Pid()), zap.Strings("args", argv))

	if err := s.registry.Attach(ctx, j.ID, proc); err != nil {
		// Aborted between admission and spawn.
		logger.Info("job aborted before attach, terminating worker", zap.Error(err))
		if termErr := proc.Terminate(); termErr != nil {
			logger.Warn("terminate worker failed", zap.Error(termErr))
		}
	}
	defer s.registry.Detach(ctx, j.ID)

	s.consume(ctx, j.ID, stdout, logger)

	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		logger.Info("worker exited", zap.Int("exit_code", 0))
	case errors.As(waitErr, &exitErr):
		logger.Info("worker exited", zap.Int("exit_code", exitErr.ExitCode()), zap.String("state", exitErr.String()))
	default:
		logger.Warn("worker wait failed", zap.Error(waitErr))
	}
	return nil
}

// consume reads stdout until EOF. The first line of any kind marks the job
// running; stats and recursion records replace the stored counters.
func (s *Supervisor) consume(ctx context.Context, jobID string, stdout io.Reader, logger *zap.Logger) {
	reader := bufio.NewReader(stdout)
	first := true
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if first {
				first = false
				s.markRunning(ctx, jobID, logger)
			}
			s.apply(ctx, jobID, bytes.TrimSpace(line), logger)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("worker stdout read failed", zap.Error(err))
				// Drain so the child never blocks on a full pipe.
				_, _ = io.Copy(io.Discard, reader)
			}
			return
		}
	}
}

func (s *Supervisor) markRunning(ctx context.Context, jobID string, logger *zap.Logger) {
	now := s.clock.Now()
	started, err := s.registry.MarkRunning(ctx, jobID, now)
	if err != nil {
		logger.Error("mark running failed", zap.Error(err))
		return
	}
	if !started {
		return
	}
	logger.Info("job running")
	if snap, err := s.registry.Get(ctx, jobID); err == nil {
		s.events.Emit(progress.ForJob(progress.StageJobStart, snap, now))
	}
}

func (s *Supervisor) apply(ctx context.Context, jobID string, line []byte, logger *zap.Logger) {
	rec, ok := Classify(line)
	if !ok {
		logger.Debug("ignoring worker output", zap.ByteString("line", line))
		return
	}
	var err error
	switch r := rec.(type) {
	case StatsRecord:
		err = s.registry.SetStats(ctx, jobID, r.Counters)
	case RecursionRecord:
		err = s.registry.SetRecursionStats(ctx, jobID, r.Counters)
	}
	if err != nil {
		logger.Error("store worker counters failed", zap.Error(err))
		return
	}
	if snap, err := s.registry.Get(ctx, jobID); err == nil {
		s.events.Emit(progress.ForJob(progress.StageJobStats, snap, s.clock.Now()))
	}
}

// process adapts a started exec.Cmd to job.Process.
type process struct {
	cmd *exec.Cmd
}

// Terminate sends SIGTERM. A process that already exited is not an error.
func (p *process) Terminate() error {
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal worker %d: %w", p.Pid(), err)
	}
	return nil
}

// Pid returns the operating system process id.
func (p *process) Pid() int {
	return p.cmd.Process.Pid
}
