// Package pipeline implements the multi-step ads analysis pipeline. Each run plans the
// analysis, summarizes the dataset, generates hypotheses, validates them against a
// confidence gate with a shared refinement budget, proposes creative copy, and composes
// a markdown report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/ads-analyst/internal/metrics"
	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

const DefaultMaxRetries = 2

// Config holds the configuration for the pipeline.
type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Generator  Generator
	Summarizer Summarizer

	ConfidenceMin float64 // Evaluations below this are dropped
	MaxRetries    int     // Refinements allowed per run across all hypotheses
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Generator == nil {
		return errors.New("generator is required")
	}
	if c.Summarizer == nil {
		return errors.New("summarizer is required")
	}
	if c.ConfidenceMin < 0 || c.ConfidenceMin > 1 {
		return fmt.Errorf("confidence min must be within [0, 1], got %v", c.ConfidenceMin)
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// RunResult holds the complete result of a run.
type RunResult struct {
	RunID      string
	Query      string
	Plan       Plan
	Statistics *summary.Statistics

	// Validated evaluations in hypothesis order. Never nil.
	Insights []Evaluation
	// Creative recommendations. Never nil.
	Creatives []Creative

	Report        string
	Trace         *Trace
	Refinements   int
	ExecutionTime time.Duration
}

// Pipeline sequences the stages of a run. A Pipeline holds no per-run state, so one
// value can execute any number of runs one after another.
type Pipeline struct {
	cfg *Config
	log *slog.Logger
}

// New creates a new Pipeline.
func New(cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Pipeline{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

// run is the per-run state owned by a single call to Run.
type run struct {
	log    *slog.Logger
	trace  *Trace
	budget *RetryBudget
	stats  *summary.Statistics
}

// Run executes the full pipeline for a query.
func (p *Pipeline) Run(ctx context.Context, query string) (*RunResult, error) {
	clock := p.cfg.Clock
	start := clock.Now()
	runID := uuid.NewString()

	r := &run{
		log:    p.log.With("run_id", runID),
		trace:  newTrace(clock),
		budget: NewRetryBudget(p.cfg.MaxRetries),
	}
	result, err := p.run(ctx, r, query)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		r.log.Error("pipeline: run failed", "error", err)
		return nil, err
	}

	result.RunID = runID
	result.Trace = r.trace
	result.Refinements = r.budget.Used()
	result.ExecutionTime = clock.Since(start)
	metrics.RunsTotal.WithLabelValues("ok").Inc()

	r.log.Info("pipeline: run complete",
		"executionTime", result.ExecutionTime,
		"insights", len(result.Insights),
		"creatives", len(result.Creatives),
		"refinements", result.Refinements,
		"traceRecords", r.trace.Len())
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, r *run, query string) (*RunResult, error) {
	result := &RunResult{
		Query:     query,
		Insights:  []Evaluation{},
		Creatives: []Creative{},
	}

	// Stage 1: Plan
	r.log.Info("pipeline: planning", "query", query)
	stageStart := p.cfg.Clock.Now()
	planned, err := generate[PlanResult](ctx, p, r, PlanRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	result.Plan = planned.Plan
	r.trace.append(StagePlan, map[string]any{"query": query}, planned.Plan)
	p.observe(StagePlan, stageStart)
	r.log.Info("pipeline: plan ready",
		"subtasks", len(planned.Plan.Subtasks),
		"analysisType", planned.Plan.AnalysisType,
		"fallback", planned.Fallback)

	// Stage 2: Summarize
	r.log.Info("pipeline: summarizing dataset")
	stageStart = p.cfg.Clock.Now()
	stats, err := p.cfg.Summarizer.Summarize(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	r.stats = stats
	result.Statistics = stats
	r.trace.append(StageSummarize, map[string]any{}, stats)
	p.observe(StageSummarize, stageStart)

	// Stage 3: Generate hypotheses
	r.log.Info("pipeline: generating hypotheses")
	stageStart = p.cfg.Clock.Now()
	generated, err := generate[HypothesesResult](ctx, p, r, InsightRequest{Query: query, Plan: result.Plan})
	if err != nil {
		return nil, fmt.Errorf("hypothesis generation failed: %w", err)
	}
	hypotheses := generated.Hypotheses
	if hypotheses == nil {
		hypotheses = []Hypothesis{}
	}
	r.trace.append(StageGenerateHypotheses, map[string]any{"query": query, "plan": result.Plan}, hypotheses)
	p.observe(StageGenerateHypotheses, stageStart)
	r.log.Info("pipeline: hypotheses generated", "count", len(hypotheses), "fallback", generated.Fallback)

	// Stage 4: Evaluate with the shared refinement budget
	r.log.Info("pipeline: evaluating hypotheses", "count", len(hypotheses), "budget", r.budget.Remaining())
	stageStart = p.cfg.Clock.Now()
	insights, err := p.evaluateAll(ctx, r, hypotheses)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	result.Insights = insights
	p.observe(StageEvaluate, stageStart)

	// Stage 5: Generate creatives
	r.log.Info("pipeline: generating creatives", "insights", len(insights))
	stageStart = p.cfg.Clock.Now()
	creative, err := generate[CreativesResult](ctx, p, r, CreativeRequest{Insights: insights})
	if err != nil {
		return nil, fmt.Errorf("creative generation failed: %w", err)
	}
	if creative.Creatives != nil {
		result.Creatives = creative.Creatives
	}
	r.trace.append(StageGenerateCreatives, map[string]any{"insights": insights}, result.Creatives)
	p.observe(StageGenerateCreatives, stageStart)

	// Stage 6: Compose report
	stageStart = p.cfg.Clock.Now()
	result.Report = ComposeReport(query, stageStart, result.Insights, result.Creatives)
	r.trace.append(StageComposeReport,
		map[string]any{"insights": len(result.Insights), "creatives": len(result.Creatives)},
		map[string]any{"report": result.Report})
	p.observe(StageComposeReport, stageStart)

	return result, nil
}

// generate calls the generator and narrows its result to T. A result of the wrong
// variant is replaced by the request's fallback.
func generate[T Result](ctx context.Context, p *Pipeline, r *run, req Request) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	res, err := p.cfg.Generator.Generate(ctx, req, r.stats)
	if err != nil {
		return zero, err
	}
	if typed, ok := res.(T); ok {
		return typed, nil
	}

	r.log.Warn("pipeline: unexpected generator result, using fallback",
		"role", req.Role(), "type", fmt.Sprintf("%T", res))
	metrics.GeneratorFallbacksTotal.WithLabelValues(string(req.Role()), "mismatch").Inc()
	fallback, _ := Fallback(req).(T)
	return fallback, nil
}

func (p *Pipeline) observe(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(p.cfg.Clock.Since(start).Seconds())
}
