package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input float64
		want  string
	}{
		{"zero", 0, "0.0 B"},
		{"bytes", 1023, "1023.0 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibyte", 1024 * 1024, "1.0 MiB"},
		{"gibibytes", 3.5 * 1024 * 1024 * 1024, "3.5 GiB"},
		{"caps at tebibytes", 2048 * 1024 * 1024 * 1024 * 1024, "2048.0 TiB"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, FormatBytes(tc.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0s", FormatDuration(0))
	require.Equal(t, "0s", FormatDuration(400*time.Millisecond))
	require.Equal(t, "59s", FormatDuration(59*time.Second))
	require.Equal(t, "1h 1s", FormatDuration(time.Hour+time.Second))
	require.Equal(t, "1d 2h 3m 4s", FormatDuration(26*time.Hour+3*time.Minute+4*time.Second))
}

func TestFormatStatusDefaultsMissingCounters(t *testing.T) {
	t.Parallel()

	j := Job{ID: "id-1", URL: "http://example.org", Status: StatusPending}
	require.Equal(t,
		"http://example.org (id-1) pending. 0 pages finished, 0 pending; 0 crashed, 0 requests, 0 failed, 0.0 B received.",
		FormatStatus(j))
}

func TestFormatStatusWithCountersAndDuration(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	finished := created.Add(90 * time.Second)
	j := Job{
		ID:         "id-2",
		URL:        "https://example.org/",
		Status:     StatusFinished,
		CreatedAt:  created,
		FinishedAt: &finished,
		Stats:      Counters{StatCrashed: 1, StatRequests: 20, StatFailed: 2, StatBytesRcv: 1536},
		RStats:     Counters{RStatHave: 3, RStatPending: 4},
	}
	require.Equal(t,
		"https://example.org/ (id-2) finished. 3 pages finished, 4 pending; 1 crashed, 20 requests, 2 failed, 1.5 KiB received. Took 1m 30s.",
		FormatStatus(j))
}

func TestFormatQueued(t *testing.T) {
	t.Parallel()

	j := Job{ID: "abc", URL: "http://example.org", Params: Params{Concurrency: 2, Recursive: PolicyOne}}
	require.Equal(t, "http://example.org has been queued as abc with concurrency=2, recursive=1", FormatQueued(j))
}
