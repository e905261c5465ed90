package job

import (
	"fmt"
	"strings"
	"time"
)

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// FormatBytes renders a byte count with a binary unit suffix and one decimal.
func FormatBytes(b float64) string {
	unit := 0
	for b >= 1024 && unit < len(byteUnits)-1 {
		b /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", b, byteUnits[unit])
}

// FormatDuration renders d as "1d 2h 3m 4s", omitting zero components.
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0s"
	}
	parts := []struct {
		n    int64
		unit string
	}{
		{seconds / 86400, "d"},
		{seconds % 86400 / 3600, "h"},
		{seconds % 3600 / 60, "m"},
		{seconds % 60, "s"},
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.n != 0 {
			out = append(out, fmt.Sprintf("%d%s", p.n, p.unit))
		}
	}
	return strings.Join(out, " ")
}

// FormatStatus renders the single-line chat summary of a job.
func FormatStatus(j Job) string {
	line := fmt.Sprintf("%s (%s) %s. %d pages finished, %d pending; %d crashed, %d requests, %d failed, %s received.",
		j.URL,
		j.ID,
		j.Status,
		j.RStats.Int(RStatHave),
		j.RStats.Int(RStatPending),
		j.Stats.Int(StatCrashed),
		j.Stats.Int(StatRequests),
		j.Stats.Int(StatFailed),
		FormatBytes(j.Stats.Get(StatBytesRcv)),
	)
	if d, ok := j.Duration(); ok {
		line += " Took " + FormatDuration(d) + "."
	}
	return line
}

// FormatQueued renders the acknowledgment sent before a job waits for a slot.
func FormatQueued(j Job) string {
	return fmt.Sprintf("%s has been queued as %s with concurrency=%d, recursive=%s",
		j.URL, j.ID, j.Params.Concurrency, j.Params.Recursive)
}
