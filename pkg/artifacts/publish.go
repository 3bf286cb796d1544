package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/ads-analyst/pkg/pipeline"
)

const (
	InsightsName  = "insights.json"
	CreativesName = "creatives.json"
	ReportName    = "report.md"

	traceLayout = "20060102_150405"
)

// TraceName returns the trace artifact name for a run finished at the clock's current time.
func TraceName(clock clockwork.Clock) string {
	return "execution_trace_" + clock.Now().Format(traceLayout) + ".json"
}

type PublisherConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Output Sink // insights, creatives and report
	Logs   Sink // execution trace
}

func (c *PublisherConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Output == nil {
		return errors.New("output sink is required")
	}
	if c.Logs == nil {
		return errors.New("log sink is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Publisher writes the artifacts of a finished run.
type Publisher struct {
	cfg *PublisherConfig
	log *slog.Logger
}

func NewPublisher(cfg *PublisherConfig) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, log: cfg.Logger}, nil
}

// Locations maps each artifact name to where it was stored.
type Locations map[string]string

// Publish writes insights.json, creatives.json and report.md to the output sink and
// the execution trace to the log sink.
func (p *Publisher) Publish(ctx context.Context, res *pipeline.RunResult) (Locations, error) {
	if res == nil {
		return nil, errors.New("result is required")
	}

	insights, err := marshal(res.Insights)
	if err != nil {
		return nil, fmt.Errorf("failed to encode insights: %w", err)
	}
	creatives, err := marshal(res.Creatives)
	if err != nil {
		return nil, fmt.Errorf("failed to encode creatives: %w", err)
	}
	trace, err := marshal(res.Trace)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trace: %w", err)
	}

	writes := []struct {
		sink Sink
		name string
		body []byte
	}{
		{p.cfg.Output, InsightsName, insights},
		{p.cfg.Output, CreativesName, creatives},
		{p.cfg.Output, ReportName, []byte(res.Report)},
		{p.cfg.Logs, TraceName(p.cfg.Clock), trace},
	}

	locs := make(Locations, len(writes))
	for _, w := range writes {
		if err := w.sink.Write(ctx, w.name, w.body); err != nil {
			return locs, fmt.Errorf("failed to write %s: %w", w.name, err)
		}
		locs[w.name] = w.sink.Location(w.name)
		p.log.Debug("artifacts: wrote", "name", w.name, "location", locs[w.name], "bytes", len(w.body))
	}
	p.log.Info("artifacts: published", "run_id", res.RunID, "count", len(locs))
	return locs, nil
}

func marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
