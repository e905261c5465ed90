package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Stats snapshots go to debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("job_id", evt.JobUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
			zap.String("owner", evt.Owner),
		}
		switch evt.Stage {
		case progress.StageJobStats:
			fields = append(fields,
				zap.Int64("requests", evt.Requests),
				zap.Int64("failed", evt.Failed),
				zap.Int64("bytes", evt.Bytes),
				zap.Int64("pages_done", evt.PagesDone),
			)
			s.logger.Debug("job progress", fields...)
			continue
		case progress.StageJobDone, progress.StageJobAborted:
			fields = append(fields, zap.Duration("dur", evt.Dur), zap.Int64("bytes", evt.Bytes))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("job event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
