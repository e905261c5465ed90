package worker

import (
	"encoding/json"

	"github.com/JakeFAU/archivebot/internal/job"
)

// Stdout record kind identifiers carried in the "uuid" field.
const (
	StatsKind     = "24d92d16-770e-4088-b769-4020e127a7ff"
	RecursionKind = "5b8498e4-868d-413c-a67e-004516b8452c"
)

// Record is a classified worker stdout line: StatsRecord or RecursionRecord.
type Record interface {
	isRecord()
}

// StatsRecord carries the worker's request counters.
type StatsRecord struct {
	Counters job.Counters
}

func (StatsRecord) isRecord() {}

// RecursionRecord carries the recursion controller's page counters.
type RecursionRecord struct {
	Counters job.Counters
}

func (RecursionRecord) isRecord() {}

// Classify decodes one stdout line. Lines that are not JSON objects or carry
// an unknown kind yield ok == false.
func Classify(line []byte) (Record, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, false
	}
	kind, _ := raw["uuid"].(string)
	switch kind {
	case StatsKind:
		return StatsRecord{Counters: counters(raw)}, true
	case RecursionKind:
		return RecursionRecord{Counters: counters(raw)}, true
	default:
		return nil, false
	}
}

// counters keeps the numeric fields of a record.
func counters(raw map[string]any) job.Counters {
	out := make(job.Counters, len(raw))
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			out[k] = n
		}
	}
	return out
}
