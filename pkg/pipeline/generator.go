package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/malbeclabs/ads-analyst/internal/metrics"
	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

const DefaultMaxInsights = 5

// Sampling temperatures per call kind.
const (
	plannerTemperature   = 0.3
	insightTemperature   = 0.7
	refineTemperature    = 0.5
	evaluatorTemperature = 0.3
	creativeTemperature  = 0.8
)

// GeneratorConfig configures an LLMGenerator.
type GeneratorConfig struct {
	Logger  *slog.Logger
	LLM     LLMClient
	Prompts *Prompts // Loaded from the embedded templates when nil

	MaxInsights     int     // Hypotheses kept per generation, DefaultMaxInsights when zero
	ConfidenceMin   float64 // Shown to the evaluator as the rejection threshold
	LowCTRThreshold *float64 // Shown to the creative role, summary default when nil
}

// Validate checks that the configuration is usable.
func (c *GeneratorConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.LLM == nil {
		return errors.New("llm client is required")
	}
	if c.MaxInsights < 0 {
		return errors.New("max insights must not be negative")
	}
	if c.ConfidenceMin < 0 || c.ConfidenceMin > 1 {
		return fmt.Errorf("confidence min must be within [0, 1], got %v", c.ConfidenceMin)
	}
	return nil
}

// LLMGenerator implements Generator with one LLM call per request.
type LLMGenerator struct {
	cfg     GeneratorConfig
	log     *slog.Logger
	schemas *responseSchemas
	lowCTR  float64
}

// NewLLMGenerator creates a generator from cfg.
func NewLLMGenerator(cfg GeneratorConfig) (*LLMGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	if cfg.Prompts == nil {
		p, err := LoadPrompts()
		if err != nil {
			return nil, err
		}
		cfg.Prompts = p
	}
	if cfg.MaxInsights == 0 {
		cfg.MaxInsights = DefaultMaxInsights
	}
	lowCTR := float64(summary.DefaultLowCTRThreshold)
	if cfg.LowCTRThreshold != nil {
		lowCTR = *cfg.LowCTRThreshold
	}
	schemas, err := newResponseSchemas()
	if err != nil {
		return nil, err
	}
	return &LLMGenerator{cfg: cfg, log: cfg.Logger, schemas: schemas, lowCTR: lowCTR}, nil
}

// Generate dispatches req to its role.
func (g *LLMGenerator) Generate(ctx context.Context, req Request, stats *summary.Statistics) (Result, error) {
	switch r := req.(type) {
	case PlanRequest:
		return g.plan(ctx, r)
	case InsightRequest:
		return g.hypotheses(ctx, r, stats)
	case RefineRequest:
		return g.refine(ctx, r, stats)
	case EvaluateRequest:
		return g.evaluate(ctx, r, stats)
	case CreativeRequest:
		return g.creatives(ctx, r, stats)
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

func (g *LLMGenerator) plan(ctx context.Context, req PlanRequest) (Result, error) {
	user := render(g.cfg.Prompts.Planner, map[string]string{
		"USER_QUERY":      req.Query,
		"RESPONSE_SCHEMA": g.schemas.plan,
	})
	response, ok, err := g.complete(ctx, RolePlanner, plannerSystemPrompt, user, plannerTemperature)
	if err != nil || !ok {
		return Fallback(req), err
	}

	var plan Plan
	if !g.decode(RolePlanner, response, &plan) {
		return Fallback(req), nil
	}
	if plan.Subtasks == nil {
		plan.Subtasks = []string{}
	}
	g.log.Info("generator: plan generated", "subtasks", len(plan.Subtasks), "analysisType", plan.AnalysisType)
	return PlanResult{Plan: plan}, nil
}

func (g *LLMGenerator) hypotheses(ctx context.Context, req InsightRequest, stats *summary.Statistics) (Result, error) {
	user := render(g.cfg.Prompts.Insight, map[string]string{
		"USER_QUERY":      req.Query,
		"PLAN":            toJSON(req.Plan),
		"DATA_SUMMARY":    toJSON(stats),
		"RESPONSE_SCHEMA": g.schemas.hypothesis,
	})
	response, ok, err := g.complete(ctx, RoleInsight, insightSystemPrompt, user, insightTemperature)
	if err != nil || !ok {
		return Fallback(req), err
	}

	var items []Hypothesis
	if !g.decodeList(RoleInsight, response, "hypotheses", &items) {
		return Fallback(req), nil
	}

	out := make([]Hypothesis, 0, len(items))
	for _, h := range items {
		if strings.TrimSpace(h.Hypothesis) == "" {
			continue
		}
		h.Category = h.Category.normalize()
		out = append(out, h)
	}
	if len(out) > g.cfg.MaxInsights {
		out = out[:g.cfg.MaxInsights]
	}
	g.log.Info("generator: hypotheses generated", "count", len(out), "parsed", len(items))
	return HypothesesResult{Hypotheses: out}, nil
}

func (g *LLMGenerator) refine(ctx context.Context, req RefineRequest, stats *summary.Statistics) (Result, error) {
	feedback := req.Evaluation.Reasoning
	if strings.TrimSpace(feedback) == "" {
		feedback = req.Evaluation.Evidence
	}
	user := render(g.cfg.Prompts.Refine, map[string]string{
		"CONFIDENCE":          strconv.FormatFloat(req.Evaluation.Confidence, 'f', 2, 64),
		"HYPOTHESIS":          toJSON(req.Hypothesis),
		"EVALUATION_FEEDBACK": feedback,
		"DATA_SUMMARY":        toJSON(stats),
		"RESPONSE_SCHEMA":     g.schemas.hypothesis,
	})
	response, ok, err := g.complete(ctx, RoleInsight, refineSystemPrompt, user, refineTemperature)
	if err != nil || !ok {
		return Fallback(req), err
	}

	var refined Hypothesis
	if !g.decode(RoleInsight, response, &refined) || strings.TrimSpace(refined.Hypothesis) == "" {
		return Fallback(req), nil
	}
	refined.Category = refined.Category.normalize()
	g.log.Info("generator: hypothesis refined", "hypothesis", truncateString(refined.Hypothesis, 120))
	return HypothesesResult{Hypotheses: []Hypothesis{refined}}, nil
}

func (g *LLMGenerator) evaluate(ctx context.Context, req EvaluateRequest, stats *summary.Statistics) (Result, error) {
	user := render(g.cfg.Prompts.Evaluator, map[string]string{
		"HYPOTHESIS":      toJSON(req.Hypothesis),
		"DATA_SUMMARY":    toJSON(stats),
		"CONFIDENCE_MIN":  strconv.FormatFloat(g.cfg.ConfidenceMin, 'f', -1, 64),
		"RESPONSE_SCHEMA": g.schemas.evaluation,
	})
	response, ok, err := g.complete(ctx, RoleEvaluator, evaluatorSystemPrompt, user, evaluatorTemperature)
	if err != nil || !ok {
		return Fallback(req), err
	}

	// Confidence shadows the embedded field so a missing value can be told apart.
	var raw struct {
		Evaluation
		Confidence *Rate `json:"confidence"`
	}
	if !g.decode(RoleEvaluator, response, &raw) {
		return Fallback(req), nil
	}

	eval := raw.Evaluation
	eval.Confidence = defaultConfidence
	if raw.Confidence != nil {
		eval.Confidence = clamp01(float64(*raw.Confidence))
	}
	if strings.TrimSpace(eval.Hypothesis) == "" {
		eval.Hypothesis = req.Hypothesis.Hypothesis
	}
	g.log.Info("generator: evaluation complete",
		"confidence", eval.Confidence,
		"passed", eval.Confidence >= g.cfg.ConfidenceMin)
	return EvaluationResult{Evaluation: eval}, nil
}

func (g *LLMGenerator) creatives(ctx context.Context, req CreativeRequest, stats *summary.Statistics) (Result, error) {
	if stats == nil || len(stats.LowPerformers) == 0 {
		g.log.Info("generator: no low performers, skipping creative generation")
		return CreativesResult{Creatives: []Creative{}}, nil
	}

	insights := req.Insights
	if insights == nil {
		insights = []Evaluation{}
	}
	topMessages := stats.CreativePerformance.TopMessages
	if topMessages == nil {
		topMessages = []summary.MessagePerformance{}
	}
	user := render(g.cfg.Prompts.Creative, map[string]string{
		"INSIGHTS":          toJSON(insights),
		"LOW_PERFORMERS":    toJSON(stats.LowPerformers),
		"TOP_MESSAGES":      toJSON(topMessages),
		"LOW_CTR_THRESHOLD": strconv.FormatFloat(g.lowCTR, 'f', -1, 64),
		"RESPONSE_SCHEMA":   g.schemas.creative,
	})
	response, ok, err := g.complete(ctx, RoleCreative, creativeSystemPrompt, user, creativeTemperature)
	if err != nil || !ok {
		return Fallback(req), err
	}

	var items []Creative
	if !g.decodeList(RoleCreative, response, "recommendations", &items) {
		return Fallback(req), nil
	}
	for i := range items {
		if items[i].RecommendedMessages == nil {
			items[i].RecommendedMessages = []string{}
		}
	}
	if items == nil {
		items = []Creative{}
	}
	g.log.Info("generator: creative recommendations generated", "count", len(items))
	return CreativesResult{Creatives: items}, nil
}

// complete issues the LLM call. ok is false when the call failed with a recoverable error
// and the caller should fall back. Authentication failures and cancellation are returned.
func (g *LLMGenerator) complete(ctx context.Context, role Role, system, user string, temperature float64) (string, bool, error) {
	response, err := g.cfg.LLM.Complete(ctx, system, user, WithTemperature(temperature), WithCacheControl())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(string(role), "error").Inc()
		if errors.Is(err, ErrAuthentication) {
			return "", false, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		g.log.Warn("generator: llm call failed, using fallback", "role", role, "error", err)
		metrics.GeneratorFallbacksTotal.WithLabelValues(string(role), "transport").Inc()
		return "", false, nil
	}
	metrics.LLMCallsTotal.WithLabelValues(string(role), "ok").Inc()
	return response, true, nil
}

// decode unmarshals the JSON found in response into v.
func (g *LLMGenerator) decode(role Role, response string, v any) bool {
	jsonStr := extractJSON(response, "{")
	if jsonStr == "" {
		g.parseFailed(role, response, errors.New("no JSON object in response"))
		return false
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		g.parseFailed(role, response, err)
		return false
	}
	return true
}

// decodeList unmarshals either a bare JSON array or an object wrapping the array under
// key into out.
func (g *LLMGenerator) decodeList(role Role, response, key string, out any) bool {
	jsonStr := extractJSON(response, "{[")
	if jsonStr == "" {
		g.parseFailed(role, response, errors.New("no JSON in response"))
		return false
	}

	data := []byte(jsonStr)
	if jsonStr[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			g.parseFailed(role, response, err)
			return false
		}
		inner, ok := wrapper[key]
		if !ok {
			g.parseFailed(role, response, fmt.Errorf("missing %q key", key))
			return false
		}
		data = inner
	}
	if err := json.Unmarshal(data, out); err != nil {
		g.parseFailed(role, response, err)
		return false
	}
	return true
}

func (g *LLMGenerator) parseFailed(role Role, response string, err error) {
	g.log.Warn("generator: failed to parse response, using fallback",
		"role", role, "error", err, "response", truncateString(response, 200))
	metrics.GeneratorFallbacksTotal.WithLabelValues(string(role), "parse").Inc()
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return defaultConfidence
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
