package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/archivebot/internal/progress"
	"github.com/JakeFAU/archivebot/internal/publisher/memory"
)

func TestNotifySinkPublishesTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewNotifySink(pub, zaptest.NewLogger(t))
	id := uuid.New()
	jobID := progress.UUIDToBytes(id)
	now := time.Unix(1000, 0)

	batch := []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobQueued, URL: "http://example.org"},
		{JobID: jobID, TS: now, Stage: progress.StageJobStart},
		{JobID: jobID, TS: now, Stage: progress.StageJobStats, Requests: 3},
		{
			JobID:     jobID,
			TS:        now.Add(time.Minute),
			Stage:     progress.StageJobDone,
			URL:       "http://example.org",
			Owner:     "alice",
			Dur:       time.Minute,
			Requests:  5,
			Bytes:     2048,
			PagesDone: 2,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, KindJobFinished, msgs[0].Kind)
	n, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)
	require.Equal(t, id.String(), n.JobID)
	require.Equal(t, "finished", n.Result)
	require.Equal(t, "alice", n.Owner)
	require.InDelta(t, 60.0, n.DurationS, 1e-9)
	require.Equal(t, int64(2048), n.Bytes)
}

func TestNotifySinkAbortedKind(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewNotifySink(pub, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageJobAborted, Note: "aborted by bob"},
	}))
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, KindJobAborted, msgs[0].Kind)
	require.Equal(t, "aborted by bob", msgs[0].Payload.(Notification).Note)
}

func TestNotifySinkJoinsPublishErrors(t *testing.T) {
	t.Parallel()

	sink := NewNotifySink(failingPublisher{}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageJobDone},
		{JobID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageJobAborted},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, errBrokerDown)

	require.NoError(t, NewNotifySink(nil, nil).Consume(context.Background(), nil))
}

var errBrokerDown = errors.New("broker down")

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errBrokerDown
}
