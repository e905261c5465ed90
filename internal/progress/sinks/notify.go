package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/progress"
	"github.com/JakeFAU/archivebot/internal/publisher"
)

// Notification kinds.
const (
	KindJobFinished = "job.finished"
	KindJobAborted  = "job.aborted"
)

// Notification is the payload published for each terminal job event.
type Notification struct {
	JobID      string    `json:"job_id"`
	URL        string    `json:"url"`
	Owner      string    `json:"owner"`
	Result     string    `json:"result"`
	FinishedAt time.Time `json:"finished_at"`
	DurationS  float64   `json:"duration_seconds"`
	Requests   int64     `json:"requests"`
	Failed     int64     `json:"failed"`
	Bytes      int64     `json:"bytes_received"`
	PagesDone  int64     `json:"pages_finished"`
	Note       string    `json:"note,omitempty"`
}

// NotifySink forwards terminal job events to a publisher. Non-terminal events
// are ignored.
type NotifySink struct {
	pub    publisher.Publisher
	logger *zap.Logger
}

// NewNotifySink constructs a NotifySink for pub.
func NewNotifySink(pub publisher.Publisher, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{pub: pub, logger: logger}
}

// Consume publishes one Notification per terminal event. Every event is
// attempted; failures are joined into the returned error.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.IsTerminal() {
			continue
		}
		kind, n := notificationFor(evt)
		id, err := s.pub.Publish(ctx, kind, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s for %s: %w", kind, n.JobID, err))
			continue
		}
		s.logger.Debug("job notification published", zap.String("job_id", n.JobID), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

func notificationFor(evt progress.Event) (string, Notification) {
	kind, result := KindJobFinished, "finished"
	if evt.Stage == progress.StageJobAborted {
		kind, result = KindJobAborted, "aborted"
	}
	return kind, Notification{
		JobID:      evt.JobUUID().String(),
		URL:        evt.URL,
		Owner:      evt.Owner,
		Result:     result,
		FinishedAt: evt.TS.UTC(),
		DurationS:  evt.Dur.Seconds(),
		Requests:   evt.Requests,
		Failed:     evt.Failed,
		Bytes:      evt.Bytes,
		PagesDone:  evt.PagesDone,
		Note:       evt.Note,
	}
}
