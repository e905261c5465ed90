package worker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archivebot/internal/job"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want Record
		ok   bool
	}{
		{
			name: "stats",
			line: `{"uuid": "24d92d16-770e-4088-b769-4020e127a7ff", "requests": 4, "crashed": 0, "note": "x"}`,
			want: StatsRecord{Counters: job.Counters{"requests": 4, "crashed": 0}},
			ok:   true,
		},
		{
			name: "recursion",
			line: `{"uuid": "5b8498e4-868d-413c-a67e-004516b8452c", "have": 1, "pending": 2}`,
			want: RecursionRecord{Counters: job.Counters{"have": 1, "pending": 2}},
			ok:   true,
		},
		{name: "unknown kind", line: `{"uuid": "something-else", "requests": 1}`},
		{name: "no kind", line: `{"requests": 1}`},
		{name: "not an object", line: `[1, 2]`},
		{name: "garbage", line: `Traceback (most recent call last):`},
		{name: "empty", line: ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Classify([]byte(tc.line))
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}
