package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

func newTestGenerator(t *testing.T, llm LLMClient) *LLMGenerator {
	t.Helper()
	g, err := NewLLMGenerator(GeneratorConfig{
		Logger:        testLogger(),
		LLM:           llm,
		MaxInsights:   2,
		ConfidenceMin: 0.6,
	})
	require.NoError(t, err)
	return g
}

func TestAnalyst_Pipeline_LoadPrompts(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)

	for name, tc := range map[string]struct {
		prompt       string
		placeholders []string
	}{
		"planner":   {p.Planner, []string{"{{USER_QUERY}}", "{{RESPONSE_SCHEMA}}"}},
		"insight":   {p.Insight, []string{"{{USER_QUERY}}", "{{PLAN}}", "{{DATA_SUMMARY}}", "{{RESPONSE_SCHEMA}}"}},
		"refine":    {p.Refine, []string{"{{CONFIDENCE}}", "{{HYPOTHESIS}}", "{{EVALUATION_FEEDBACK}}", "{{DATA_SUMMARY}}"}},
		"evaluator": {p.Evaluator, []string{"{{HYPOTHESIS}}", "{{DATA_SUMMARY}}", "{{CONFIDENCE_MIN}}"}},
		"creative":  {p.Creative, []string{"{{INSIGHTS}}", "{{LOW_PERFORMERS}}", "{{TOP_MESSAGES}}", "{{LOW_CTR_THRESHOLD}}"}},
	} {
		require.NotEmpty(t, tc.prompt, name)
		for _, ph := range tc.placeholders {
			require.Contains(t, tc.prompt, ph, name)
		}
	}
}

func TestAnalyst_Pipeline_Render(t *testing.T) {
	t.Parallel()

	got := render("q={{Q}} s={{S}} again={{Q}}", map[string]string{
		"Q": "{{S}}",
		"S": "stats",
	})
	// Substituted values are not rescanned.
	require.Equal(t, "q={{S}} s=stats again={{S}}", got)
}

func TestAnalyst_Pipeline_Generator_Plan(t *testing.T) {
	t.Parallel()

	llm := newFakeLLM().on(plannerSystemPrompt, "```json\n"+`{"subtasks": ["a", "b"], "analysis_type": "roas_analysis", "requires_creative": false}`+"\n```")
	g := newTestGenerator(t, llm)

	res, err := g.Generate(context.Background(), PlanRequest{Query: "Why did ROAS drop?"}, nil)
	require.NoError(t, err)
	plan, ok := res.(PlanResult)
	require.True(t, ok)
	require.False(t, plan.IsFallback())
	require.Equal(t, Plan{Subtasks: []string{"a", "b"}, AnalysisType: "roas_analysis"}, plan.Plan)

	calls := llm.callsFor(plannerSystemPrompt)
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].user, "Why did ROAS drop?")
	require.Contains(t, calls[0].user, `"analysis_type"`)
	require.NotContains(t, calls[0].user, "{{")
	require.NotNil(t, calls[0].opts.Temperature)
	require.InDelta(t, plannerTemperature, *calls[0].opts.Temperature, 1e-12)
	require.True(t, calls[0].opts.CacheSystemPrompt)
}

func TestAnalyst_Pipeline_Generator_PlanFallback(t *testing.T) {
	t.Parallel()

	for _, response := range []string{"I think you should look at ROAS.", `["not", "an", "object"]`, `{"subtasks": "oops"}`} {
		g := newTestGenerator(t, newFakeLLM().on(plannerSystemPrompt, response))

		res, err := g.Generate(context.Background(), PlanRequest{Query: "q"}, nil)
		require.NoError(t, err, response)
		plan := res.(PlanResult)
		require.True(t, plan.IsFallback(), response)
		require.Equal(t, "general", plan.Plan.AnalysisType)
		require.True(t, plan.Plan.RequiresCreative)
		require.Len(t, plan.Plan.Subtasks, 4)
	}
}

func TestAnalyst_Pipeline_Generator_Hypotheses(t *testing.T) {
	t.Parallel()

	t.Run("wrapped object is normalized and truncated", func(t *testing.T) {
		t.Parallel()

		llm := newFakeLLM().on(insightSystemPrompt, `Sure! {"hypotheses": [
			{"hypothesis": "  ", "category": "budget"},
			{"hypothesis": "Budget moved", "reasoning": "r", "data_evidence": "e", "category": "Budget"},
			{"hypothesis": "Something odd", "category": "seasonality"},
			{"hypothesis": "Third", "category": "platform"}
		]}`)
		g := newTestGenerator(t, llm)

		res, err := g.Generate(context.Background(), InsightRequest{Query: "q", Plan: fallbackPlan()}, testStats())
		require.NoError(t, err)
		hs := res.(HypothesesResult)
		require.False(t, hs.IsFallback())
		require.Equal(t, []Hypothesis{
			{Hypothesis: "Budget moved", Reasoning: "r", DataEvidence: "e", Category: CategoryBudget},
			{Hypothesis: "Something odd", Category: CategoryOther},
		}, hs.Hypotheses)

		user := llm.callsFor(insightSystemPrompt)[0].user
		require.Contains(t, user, `"low_performers"`)
		require.Contains(t, user, "Load and analyze Facebook Ads data")
	})

	t.Run("bare array", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator(t, newFakeLLM().on(insightSystemPrompt, `[{"hypothesis": "H", "category": "targeting"}]`))
		res, err := g.Generate(context.Background(), InsightRequest{Query: "q"}, testStats())
		require.NoError(t, err)
		require.Equal(t, []Hypothesis{{Hypothesis: "H", Category: CategoryTargeting}}, res.(HypothesesResult).Hypotheses)
	})

	t.Run("unparseable yields empty fallback", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator(t, newFakeLLM().on(insightSystemPrompt, `{"ideas": []}`))
		res, err := g.Generate(context.Background(), InsightRequest{Query: "q"}, testStats())
		require.NoError(t, err)
		hs := res.(HypothesesResult)
		require.True(t, hs.IsFallback())
		require.NotNil(t, hs.Hypotheses)
		require.Empty(t, hs.Hypotheses)
	})
}

func TestAnalyst_Pipeline_Generator_Refine(t *testing.T) {
	t.Parallel()

	original := Hypothesis{Hypothesis: "CTR fell", Category: CategoryCreativeDecay}
	eval := Evaluation{Hypothesis: "CTR fell", Confidence: 0.4, Reasoning: "too vague"}

	t.Run("parsed", func(t *testing.T) {
		t.Parallel()

		llm := newFakeLLM().on(refineSystemPrompt, `{"hypothesis": "CTR fell 30% in campaign A", "category": "creative_decay"}`)
		g := newTestGenerator(t, llm)
		res, err := g.Generate(context.Background(), RefineRequest{Hypothesis: original, Evaluation: eval}, testStats())
		require.NoError(t, err)
		require.Equal(t, []Hypothesis{{Hypothesis: "CTR fell 30% in campaign A", Category: CategoryCreativeDecay}},
			res.(HypothesesResult).Hypotheses)

		call := llm.callsFor(refineSystemPrompt)[0]
		require.Contains(t, call.user, "(0.40)")
		require.Contains(t, call.user, "too vague")
		require.InDelta(t, refineTemperature, *call.opts.Temperature, 1e-12)
	})

	t.Run("unparseable returns original", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator(t, newFakeLLM().on(refineSystemPrompt, "no idea"))
		res, err := g.Generate(context.Background(), RefineRequest{Hypothesis: original, Evaluation: eval}, testStats())
		require.NoError(t, err)
		hs := res.(HypothesesResult)
		require.True(t, hs.IsFallback())
		require.Equal(t, []Hypothesis{original}, hs.Hypotheses)
	})
}

func TestAnalyst_Pipeline_Generator_Evaluate(t *testing.T) {
	t.Parallel()

	h := Hypothesis{Hypothesis: "Audience fatigue"}

	tests := []struct {
		name     string
		response string
		want     float64
		fallback bool
	}{
		{name: "number", response: `{"hypothesis": "Audience fatigue", "confidence": 0.82, "evidence": "e"}`, want: 0.82},
		{name: "missing confidence", response: `{"hypothesis": "Audience fatigue", "evidence": "e"}`, want: 0.5},
		{name: "numeric string", response: `{"confidence": "0.7"}`, want: 0.7},
		{name: "percent string", response: `{"confidence": "85%"}`, want: 0.85},
		{name: "above range", response: `{"confidence": 1.7}`, want: 1},
		{name: "below range", response: `{"confidence": -0.2}`, want: 0},
		{name: "bracketed prose before object", response: `Based on the overview [total_spend, overall_roas], my assessment: {"confidence": 0.9, "evidence": "e"}`, want: 0.9},
		{name: "unparseable", response: "Looks plausible to me.", want: 0.3, fallback: true},
		{name: "bad confidence type", response: `{"confidence": true}`, want: 0.3, fallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newTestGenerator(t, newFakeLLM().on(evaluatorSystemPrompt, tt.response))
			res, err := g.Generate(context.Background(), EvaluateRequest{Hypothesis: h}, testStats())
			require.NoError(t, err)
			er := res.(EvaluationResult)
			require.Equal(t, tt.fallback, er.IsFallback())
			require.InDelta(t, tt.want, er.Evaluation.Confidence, 1e-12)
			require.Equal(t, "Audience fatigue", er.Evaluation.Hypothesis)
			if tt.fallback {
				require.Equal(t, "Unable to validate", er.Evaluation.Evidence)
				require.Equal(t, "Manual review required", er.Evaluation.Recommendation)
			}
		})
	}
}

func TestAnalyst_Pipeline_Generator_EvaluatePromptCarriesGate(t *testing.T) {
	t.Parallel()

	llm := newFakeLLM().on(evaluatorSystemPrompt, `{"confidence": 0.9}`)
	g := newTestGenerator(t, llm)
	_, err := g.Generate(context.Background(), EvaluateRequest{Hypothesis: Hypothesis{Hypothesis: "H"}}, testStats())
	require.NoError(t, err)

	user := llm.callsFor(evaluatorSystemPrompt)[0].user
	require.Contains(t, user, "below 0.6 are rejected")
	require.Contains(t, user, `"hypothesis": "H"`)
}

func TestAnalyst_Pipeline_Generator_Creatives(t *testing.T) {
	t.Parallel()

	t.Run("skips llm without low performers", func(t *testing.T) {
		t.Parallel()

		llm := newFakeLLM()
		g := newTestGenerator(t, llm)
		res, err := g.Generate(context.Background(), CreativeRequest{}, &summary.Statistics{})
		require.NoError(t, err)
		cr := res.(CreativesResult)
		require.False(t, cr.IsFallback())
		require.NotNil(t, cr.Creatives)
		require.Empty(t, cr.Creatives)
		require.Empty(t, llm.calls)
	})

	t.Run("parses recommendations", func(t *testing.T) {
		t.Parallel()

		llm := newFakeLLM().on(creativeSystemPrompt, "```json\n"+`{"recommendations": [
			{"campaign": "A", "current_ctr": "1.2%", "issue": "stale", "recommended_messages": ["New!", "Try it"], "rationale": "r", "inspired_by": "Comfort first"},
			{"campaign": "B", "current_ctr": 0.011}
		]}`+"\n```")
		g := newTestGenerator(t, llm)
		res, err := g.Generate(context.Background(), CreativeRequest{Insights: []Evaluation{{Hypothesis: "H", Confidence: 0.9}}}, testStats())
		require.NoError(t, err)
		cr := res.(CreativesResult)
		require.False(t, cr.IsFallback())
		require.Len(t, cr.Creatives, 2)
		require.InDelta(t, 0.012, float64(cr.Creatives[0].CurrentCTR), 1e-12)
		require.Equal(t, []string{"New!", "Try it"}, cr.Creatives[0].RecommendedMessages)
		require.Equal(t, "Comfort first", cr.Creatives[0].InspiredBy)
		require.InDelta(t, 0.011, float64(cr.Creatives[1].CurrentCTR), 1e-12)
		require.NotNil(t, cr.Creatives[1].RecommendedMessages)

		user := llm.callsFor(creativeSystemPrompt)[0].user
		require.Contains(t, user, "CTR below 0.015")
		require.Contains(t, user, `"campaign_name": "A"`)
		require.Contains(t, user, `"creative_message": "Comfort first"`)
	})

	t.Run("unparseable yields empty fallback", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator(t, newFakeLLM().on(creativeSystemPrompt, "Write better ads."))
		res, err := g.Generate(context.Background(), CreativeRequest{}, testStats())
		require.NoError(t, err)
		cr := res.(CreativesResult)
		require.True(t, cr.IsFallback())
		require.Empty(t, cr.Creatives)
	})
}

func TestAnalyst_Pipeline_Generator_TransportErrors(t *testing.T) {
	t.Parallel()

	t.Run("recoverable error degrades to fallback", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator(t, newFakeLLM().fail(evaluatorSystemPrompt, errors.New("anthropic API error: 529 overloaded")))
		res, err := g.Generate(context.Background(), EvaluateRequest{Hypothesis: Hypothesis{Hypothesis: "H"}}, testStats())
		require.NoError(t, err)
		require.True(t, res.IsFallback())
		require.InDelta(t, 0.3, res.(EvaluationResult).Evaluation.Confidence, 1e-12)
	})

	t.Run("authentication error is returned", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator(t, newFakeLLM().fail(plannerSystemPrompt, fmt.Errorf("%w: 401", ErrAuthentication)))
		_, err := g.Generate(context.Background(), PlanRequest{Query: "q"}, nil)
		require.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("cancellation is returned", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := newTestGenerator(t, newFakeLLM().on(plannerSystemPrompt, "{}"))
		_, err := g.Generate(ctx, PlanRequest{Query: "q"}, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestAnalyst_Pipeline_Generator_Config(t *testing.T) {
	t.Parallel()

	_, err := NewLLMGenerator(GeneratorConfig{Logger: testLogger()})
	require.Error(t, err)

	_, err = NewLLMGenerator(GeneratorConfig{Logger: testLogger(), LLM: newFakeLLM(), MaxInsights: -1})
	require.Error(t, err)

	g, err := NewLLMGenerator(GeneratorConfig{Logger: testLogger(), LLM: newFakeLLM()})
	require.NoError(t, err)
	require.Equal(t, DefaultMaxInsights, g.cfg.MaxInsights)
	require.InDelta(t, summary.DefaultLowCTRThreshold, g.lowCTR, 1e-12)

	zero := 0.0
	g, err = NewLLMGenerator(GeneratorConfig{Logger: testLogger(), LLM: newFakeLLM(), LowCTRThreshold: &zero})
	require.NoError(t, err)
	require.Zero(t, g.lowCTR, "an explicit zero threshold is kept")
}

func TestAnalyst_Pipeline_Fallback(t *testing.T) {
	t.Parallel()

	h := Hypothesis{Hypothesis: "H"}
	require.Equal(t, PlanResult{Plan: fallbackPlan(), Fallback: true}, Fallback(PlanRequest{}))
	require.Equal(t, HypothesesResult{Hypotheses: []Hypothesis{}, Fallback: true}, Fallback(InsightRequest{}))
	require.Equal(t, HypothesesResult{Hypotheses: []Hypothesis{h}, Fallback: true}, Fallback(RefineRequest{Hypothesis: h}))
	require.Equal(t, CreativesResult{Creatives: []Creative{}, Fallback: true}, Fallback(CreativeRequest{}))

	ev := Fallback(EvaluateRequest{Hypothesis: h}).(EvaluationResult)
	require.True(t, strings.HasPrefix(ev.Evaluation.Reasoning, "Evaluation parsing failed"))
	require.Equal(t, "H", ev.Evaluation.Hypothesis)
}
