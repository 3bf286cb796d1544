package pipeline

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/ads-analyst/pkg/pipeline/prompts"
)

// Prompts contains the user prompt templates for every generator role, loaded from
// embedded files. Placeholders use the {{NAME}} form.
type Prompts struct {
	Planner   string // Query decomposition into a plan
	Insight   string // Hypothesis generation
	Refine    string // Refinement of a low-confidence hypothesis
	Evaluator string // Hypothesis validation and confidence scoring
	Creative  string // Creative copy for low performers
}

// System prompts per call kind.
const (
	plannerSystemPrompt   = "You are an expert marketing analyst planning a Facebook Ads performance analysis."
	insightSystemPrompt   = "You are an expert performance marketing analyst specializing in Facebook Ads optimization."
	refineSystemPrompt    = "You are an expert analyst refining performance hypotheses."
	evaluatorSystemPrompt = "You are a quantitative analyst validating marketing hypotheses with rigorous statistical reasoning."
	creativeSystemPrompt  = "You are a creative strategist specializing in direct-response ad copy for e-commerce brands."
)

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Planner, err = loadPrompt("PLANNER.md"); err != nil {
		return nil, fmt.Errorf("failed to load PLANNER: %w", err)
	}
	if p.Insight, err = loadPrompt("INSIGHT.md"); err != nil {
		return nil, fmt.Errorf("failed to load INSIGHT: %w", err)
	}
	if p.Refine, err = loadPrompt("REFINE.md"); err != nil {
		return nil, fmt.Errorf("failed to load REFINE: %w", err)
	}
	if p.Evaluator, err = loadPrompt("EVALUATOR.md"); err != nil {
		return nil, fmt.Errorf("failed to load EVALUATOR: %w", err)
	}
	if p.Creative, err = loadPrompt("CREATIVE.md"); err != nil {
		return nil, fmt.Errorf("failed to load CREATIVE: %w", err)
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// render substitutes {{KEY}} placeholders in one pass, so values are never rescanned.
func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
