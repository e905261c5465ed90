package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "job.finished", map[string]string{"id": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "job.aborted", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "job.finished", msgs[0].Kind)
	require.Equal(t, "job.aborted", msgs[1].Kind)

	msgs[0].Kind = "modified"
	require.Equal(t, "job.finished", pub.Messages()[0].Kind, "Messages returns a copy")
}

func TestPublisherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "job.finished", nil)
	require.ErrorIs(t, err, context.Canceled)
}
