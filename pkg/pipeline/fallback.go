package pipeline

// Fallback texts used when the evaluator's answer cannot be used.
const (
	fallbackConfidence     = 0.3
	fallbackEvidence       = "Unable to validate"
	fallbackReasoning      = "Evaluation parsing failed"
	fallbackRecommendation = "Manual review required"

	defaultConfidence = 0.5
)

// Fallback returns the result a role degrades to when its response is unusable.
// It returns nil for an unknown request type.
func Fallback(req Request) Result {
	switch r := req.(type) {
	case PlanRequest:
		return PlanResult{Plan: fallbackPlan(), Fallback: true}
	case InsightRequest:
		return HypothesesResult{Hypotheses: []Hypothesis{}, Fallback: true}
	case RefineRequest:
		return HypothesesResult{Hypotheses: []Hypothesis{r.Hypothesis}, Fallback: true}
	case EvaluateRequest:
		return EvaluationResult{
			Evaluation: Evaluation{
				Hypothesis:     r.Hypothesis.Hypothesis,
				Confidence:     fallbackConfidence,
				Evidence:       fallbackEvidence,
				Reasoning:      fallbackReasoning,
				Recommendation: fallbackRecommendation,
			},
			Fallback: true,
		}
	case CreativeRequest:
		return CreativesResult{Creatives: []Creative{}, Fallback: true}
	default:
		return nil
	}
}

func fallbackPlan() Plan {
	return Plan{
		Subtasks: []string{
			"Load and analyze Facebook Ads data",
			"Identify performance patterns",
			"Generate insights",
			"Provide recommendations",
		},
		AnalysisType:     "general",
		RequiresCreative: true,
	}
}
