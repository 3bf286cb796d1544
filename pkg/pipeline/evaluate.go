package pipeline

import (
	"context"

	"github.com/malbeclabs/ads-analyst/internal/metrics"
)

// evaluateAll evaluates hypotheses in order and keeps the evaluations that pass the
// confidence gate. Refinements draw from the run's budget, so early hypotheses can
// exhaust it for later ones.
func (p *Pipeline) evaluateAll(ctx context.Context, r *run, hypotheses []Hypothesis) ([]Evaluation, error) {
	validated := make([]Evaluation, 0, len(hypotheses))
	for i, h := range hypotheses {
		eval, err := p.evaluateWithRetry(ctx, r, h)
		if err != nil {
			return nil, err
		}

		if eval.Confidence >= p.cfg.ConfidenceMin {
			metrics.GateDecisionsTotal.WithLabelValues("accepted").Inc()
			validated = append(validated, eval)
			r.log.Info("pipeline: hypothesis validated", "index", i, "confidence", eval.Confidence)
			continue
		}
		metrics.GateDecisionsTotal.WithLabelValues("rejected").Inc()
		r.log.Info("pipeline: hypothesis dropped below confidence gate",
			"index", i,
			"confidence", eval.Confidence,
			"confidenceMin", p.cfg.ConfidenceMin,
			"hypothesis", truncateString(h.Hypothesis, 120))
	}
	return validated, nil
}

// evaluateWithRetry evaluates h once and, when it falls below the gate and the budget
// allows, refines it and evaluates the refined hypothesis once more. The second
// evaluation is final.
func (p *Pipeline) evaluateWithRetry(ctx context.Context, r *run, h Hypothesis) (Evaluation, error) {
	eval, err := p.evaluate(ctx, r, h, 1)
	if err != nil {
		return Evaluation{}, err
	}
	if eval.Confidence >= p.cfg.ConfidenceMin || !r.budget.TryConsume() {
		return eval, nil
	}

	r.log.Info("pipeline: low confidence, refining hypothesis",
		"confidence", eval.Confidence,
		"budgetRemaining", r.budget.Remaining(),
		"hypothesis", truncateString(h.Hypothesis, 120))
	metrics.RefinesTotal.Inc()

	req := RefineRequest{Hypothesis: h, Evaluation: eval}
	refined, err := generate[HypothesesResult](ctx, p, r, req)
	if err != nil {
		return Evaluation{}, err
	}
	next := h
	if len(refined.Hypotheses) > 0 {
		next = refined.Hypotheses[0]
	}
	r.trace.append(StageRefine, map[string]any{"hypothesis": h, "evaluation": eval}, next)

	return p.evaluate(ctx, r, next, 2)
}

func (p *Pipeline) evaluate(ctx context.Context, r *run, h Hypothesis, attempt int) (Evaluation, error) {
	res, err := generate[EvaluationResult](ctx, p, r, EvaluateRequest{Hypothesis: h})
	if err != nil {
		return Evaluation{}, err
	}
	r.trace.append(StageEvaluate, map[string]any{"hypothesis": h, "attempt": attempt}, res.Evaluation)
	return res.Evaluation, nil
}
