package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archivebot/internal/job"
)

func TestForJob(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	created := time.Unix(100, 0)
	finished := created.Add(90 * time.Second)
	j := job.Job{
		ID:         id.String(),
		URL:        "http://example.org",
		Owner:      "alice",
		CreatedAt:  created,
		FinishedAt: &finished,
		Stats:      job.Counters{job.StatRequests: 7, job.StatFailed: 1, job.StatBytesRcv: 4096},
		RStats:     job.Counters{job.RStatHave: 3},
	}

	evt := ForJob(StageJobDone, j, finished)
	require.NoError(t, evt.Validate())
	require.Equal(t, id, evt.JobUUID())
	require.Equal(t, int64(7), evt.Requests)
	require.Equal(t, int64(1), evt.Failed)
	require.Equal(t, int64(4096), evt.Bytes)
	require.Equal(t, int64(3), evt.PagesDone)
	require.Equal(t, 90*time.Second, evt.Dur)
	require.True(t, evt.IsTerminal())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	bad := ForJob(StageJobStart, job.Job{ID: "not-a-uuid"}, time.Now())
	require.Error(t, bad.Validate())

	good := ForJob(StageJobStart, job.Job{ID: uuid.NewString()}, time.Now())
	require.NoError(t, good.Validate())
	good.Dur = -time.Second
	require.Error(t, good.Validate())
}
