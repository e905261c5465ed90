package sinks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/progress"
)

// Shipper uploads the archives of one job.
type Shipper interface {
	Ship(ctx context.Context, jobID string) ([]string, error)
}

const uploadQueueSize = 64

// UploadSink ships archives of finished jobs on a background goroutine so
// large uploads never hold up the hub. Aborted jobs are not shipped.
type UploadSink struct {
	shipper Shipper
	logger  *zap.Logger
	jobs    chan string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewUploadSink starts the upload goroutine.
func NewUploadSink(shipper Shipper, logger *zap.Logger) *UploadSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &UploadSink{
		shipper: shipper,
		logger:  logger,
		jobs:    make(chan string, uploadQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Consume queues every finished job in batch for shipping.
func (s *UploadSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageJobDone {
			continue
		}
		id := evt.JobUUID().String()
		select {
		case s.jobs <- id:
		default:
			return fmt.Errorf("upload queue full, dropping job %s", id)
		}
	}
	return nil
}

// Close stops accepting jobs and waits for queued uploads. When ctx expires
// first, in-flight uploads are cancelled.
func (s *UploadSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-s.done
		return fmt.Errorf("upload sink close: %w", ctx.Err())
	}
}

func (s *UploadSink) run() {
	defer close(s.done)
	defer s.cancel()
	for id := range s.jobs {
		uris, err := s.shipper.Ship(s.ctx, id)
		if err != nil {
			s.logger.Error("archive upload failed", zap.String("job_id", id), zap.Strings("uploaded", uris), zap.Error(err))
			continue
		}
		s.logger.Info("archives uploaded", zap.String("job_id", id), zap.Int("files", len(uris)))
	}
}
