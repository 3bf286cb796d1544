package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestAnalyst_Pipeline_Trace(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC))
	tr := newTrace(clock)
	require.Zero(t, tr.Len())

	tr.append(StagePlan, map[string]any{"query": "q"}, Plan{Subtasks: []string{"a"}})
	clock.Advance(time.Second)
	tr.append(StageEvaluate, map[string]any{"attempt": 1}, Evaluation{Hypothesis: "H", Confidence: 0.5})
	clock.Advance(time.Second)
	tr.append(StageEvaluate, map[string]any{"attempt": 2}, Evaluation{Hypothesis: "H", Confidence: 0.7})

	require.Equal(t, 3, tr.Len())
	require.Equal(t, 2, tr.Count(StageEvaluate))
	require.Equal(t, 0, tr.Count(StageRefine))

	records := tr.Records()
	require.Equal(t, 2*time.Second, records[2].Timestamp.Sub(records[0].Timestamp))

	b, err := json.Marshal(tr)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded, 3)
	require.Equal(t, "plan", decoded[0]["stage"])
	require.Equal(t, "2025-03-15T09:30:00Z", decoded[0]["timestamp"])
	require.Equal(t, map[string]any{"query": "q"}, decoded[0]["inputs"])
	require.Contains(t, decoded[1], "outputs")
}

func TestAnalyst_Pipeline_Trace_EmptyMarshalsAsArray(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(newTrace(clockwork.NewFakeClock()))
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(b))
}

func TestAnalyst_Pipeline_Rate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: `0.012`, want: 0.012},
		{in: `"0.012"`, want: 0.012},
		{in: `" 2.5% "`, want: 0.025},
		{in: `""`, want: 0},
		{in: `"n/a"`, wantErr: true},
		{in: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		var r Rate
		err := json.Unmarshal([]byte(tt.in), &r)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.InDelta(t, tt.want, float64(r), 1e-12, tt.in)
	}
}
