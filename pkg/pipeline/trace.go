package pipeline

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
)

// Stage names used in trace records.
type Stage string

const (
	StagePlan               Stage = "plan"
	StageSummarize          Stage = "summarize"
	StageGenerateHypotheses Stage = "generate_hypotheses"
	StageEvaluate           Stage = "evaluate"
	StageRefine             Stage = "refine"
	StageGenerateCreatives  Stage = "generate_creatives"
	StageComposeReport      Stage = "compose_report"
)

// TraceRecord is one stage invocation.
type TraceRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     Stage     `json:"stage"`
	Inputs    any       `json:"inputs"`
	Outputs   any       `json:"outputs"`
}

// Trace is the append-only execution log of a run. Only the pipeline appends to it.
type Trace struct {
	clock   clockwork.Clock
	records []TraceRecord
}

func newTrace(clock clockwork.Clock) *Trace {
	return &Trace{clock: clock, records: []TraceRecord{}}
}

func (t *Trace) append(stage Stage, inputs, outputs any) {
	t.records = append(t.records, TraceRecord{
		Timestamp: t.clock.Now(),
		Stage:     stage,
		Inputs:    inputs,
		Outputs:   outputs,
	})
}

// Records returns a copy of the trace records in append order.
func (t *Trace) Records() []TraceRecord {
	return slices.Clone(t.records)
}

// Len returns the number of records.
func (t *Trace) Len() int {
	return len(t.records)
}

// Count returns the number of records for stage.
func (t *Trace) Count(stage Stage) int {
	n := 0
	for _, r := range t.records {
		if r.Stage == stage {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the trace as an array of records.
func (t *Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.records)
}
