package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []Status{StatusPending, StatusRunning, StatusAborted, StatusFinished}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusRunning}:  true,
		{StatusPending, StatusAborted}:  true,
		{StatusRunning, StatusFinished}: true,
		{StatusRunning, StatusAborted}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	require.True(t, StatusAborted.IsTerminal())
	require.True(t, StatusFinished.IsTerminal())
	require.False(t, StatusRunning.IsTerminal())
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	valid := Params{URL: "http://example.org", Concurrency: 1, Recursive: PolicyNone}
	require.NoError(t, valid.Validate())

	tooMany := valid
	tooMany.Concurrency = 5
	require.Error(t, tooMany.Validate())

	badPolicy := valid
	badPolicy.Recursive = "2"
	require.Error(t, badPolicy.Validate())
}

func TestJobCloneIsDeep(t *testing.T) {
	t.Parallel()

	now := time.Now()
	orig := Job{ID: "x", Stats: Counters{StatRequests: 1}, FinishedAt: &now}
	cp := orig.Clone()
	cp.Stats[StatRequests] = 99
	*cp.FinishedAt = now.Add(time.Hour)

	require.Equal(t, 1.0, orig.Stats[StatRequests])
	require.Equal(t, now, *orig.FinishedAt)
}
