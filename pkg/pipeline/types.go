package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role identifies which reasoning step a generator call serves.
type Role string

const (
	RolePlanner   Role = "planner"
	RoleInsight   Role = "insight"
	RoleEvaluator Role = "evaluator"
	RoleCreative  Role = "creative"
)

// Category classifies the suspected driver behind a hypothesis.
type Category string

const (
	CategoryAudienceFatigue Category = "audience_fatigue"
	CategoryCreativeDecay   Category = "creative_decay"
	CategoryPlatform        Category = "platform"
	CategoryBudget          Category = "budget"
	CategoryTargeting       Category = "targeting"
	CategoryOther           Category = "other"
)

// normalize maps unknown or differently-cased categories onto the known set.
func (c Category) normalize() Category {
	switch v := Category(strings.ToLower(strings.TrimSpace(string(c)))); v {
	case CategoryAudienceFatigue, CategoryCreativeDecay, CategoryPlatform,
		CategoryBudget, CategoryTargeting, CategoryOther:
		return v
	default:
		return CategoryOther
	}
}

// Plan is the planner's decomposition of the user query.
type Plan struct {
	Subtasks         []string `json:"subtasks" jsonschema:"ordered analysis steps"`
	AnalysisType     string   `json:"analysis_type" jsonschema:"e.g. roas_analysis, ctr_analysis, creative_audit"`
	RequiresCreative bool     `json:"requires_creative" jsonschema:"whether new creative copy should be proposed"`
}

// Hypothesis is a candidate explanation for a performance pattern.
type Hypothesis struct {
	Hypothesis   string   `json:"hypothesis" jsonschema:"one-sentence hypothesis statement"`
	Reasoning    string   `json:"reasoning" jsonschema:"step-by-step analysis"`
	DataEvidence string   `json:"data_evidence" jsonschema:"specific metrics supporting the hypothesis"`
	Category     Category `json:"category" jsonschema:"audience_fatigue, creative_decay, platform, budget, targeting or other"`
}

// Evaluation is the evaluator's verdict on a hypothesis. Confidence gates whether the
// hypothesis reaches the report.
type Evaluation struct {
	Hypothesis     string         `json:"hypothesis" jsonschema:"the hypothesis being evaluated"`
	Confidence     float64        `json:"confidence" jsonschema:"confidence between 0 and 1"`
	Evidence       string         `json:"evidence" jsonschema:"quantitative evidence for or against"`
	Reasoning      string         `json:"reasoning" jsonschema:"how the evidence was weighed"`
	Recommendation string         `json:"recommendation" jsonschema:"concrete next action"`
	Metrics        map[string]any `json:"metrics,omitempty" jsonschema:"supporting metric values"`
}

// Creative is a set of replacement messages proposed for an underperforming campaign.
type Creative struct {
	Campaign            string   `json:"campaign" jsonschema:"target campaign name"`
	CurrentCTR          Rate     `json:"current_ctr" jsonschema:"current click-through rate as a fraction"`
	Issue               string   `json:"issue" jsonschema:"what is wrong with the current creative"`
	RecommendedMessages []string `json:"recommended_messages" jsonschema:"new ad copy, best first"`
	Rationale           string   `json:"rationale" jsonschema:"why these messages should perform better"`
	InspiredBy          string   `json:"inspired_by,omitempty" jsonschema:"high-performing message the set borrows from"`
}

// Rate is a fraction that also decodes from numeric strings such as "0.012" or "1.2%".
type Rate float64

func (r *Rate) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*r = Rate(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("rate must be a number or numeric string: %s", b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*r = 0
		return nil
	}
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if pct {
		f /= 100
	}
	*r = Rate(f)
	return nil
}

// Request is a generator call payload. The concrete type selects the role.
type Request interface {
	Role() Role
	request()
}

// PlanRequest asks the planner to decompose a query.
type PlanRequest struct {
	Query string
}

// InsightRequest asks for hypotheses explaining the query given the plan.
type InsightRequest struct {
	Query string
	Plan  Plan
}

// RefineRequest asks for a sharper version of a hypothesis that failed evaluation.
type RefineRequest struct {
	Hypothesis Hypothesis
	Evaluation Evaluation
}

// EvaluateRequest asks the evaluator to score a hypothesis.
type EvaluateRequest struct {
	Hypothesis Hypothesis
}

// CreativeRequest asks for creative recommendations informed by validated insights.
type CreativeRequest struct {
	Insights []Evaluation
}

func (PlanRequest) Role() Role     { return RolePlanner }
func (InsightRequest) Role() Role  { return RoleInsight }
func (RefineRequest) Role() Role   { return RoleInsight }
func (EvaluateRequest) Role() Role { return RoleEvaluator }
func (CreativeRequest) Role() Role { return RoleCreative }

func (PlanRequest) request()     {}
func (InsightRequest) request()  {}
func (RefineRequest) request()   {}
func (EvaluateRequest) request() {}
func (CreativeRequest) request() {}

// Result is a generator response. Fallback results stand in for responses that could not
// be obtained or parsed; they are valid output, not errors.
type Result interface {
	Role() Role
	IsFallback() bool
	result()
}

type PlanResult struct {
	Plan     Plan
	Fallback bool
}

type HypothesesResult struct {
	Hypotheses []Hypothesis
	Fallback   bool
}

type EvaluationResult struct {
	Evaluation Evaluation
	Fallback   bool
}

type CreativesResult struct {
	Creatives []Creative
	Fallback  bool
}

func (PlanResult) Role() Role       { return RolePlanner }
func (HypothesesResult) Role() Role { return RoleInsight }
func (EvaluationResult) Role() Role { return RoleEvaluator }
func (CreativesResult) Role() Role  { return RoleCreative }

func (r PlanResult) IsFallback() bool       { return r.Fallback }
func (r HypothesesResult) IsFallback() bool { return r.Fallback }
func (r EvaluationResult) IsFallback() bool { return r.Fallback }
func (r CreativesResult) IsFallback() bool  { return r.Fallback }

func (PlanResult) result()       {}
func (HypothesesResult) result() {}
func (EvaluationResult) result() {}
func (CreativesResult) result()  {}

var (
	_ Result = PlanResult{}
	_ Result = HypothesesResult{}
	_ Result = EvaluationResult{}
	_ Result = CreativesResult{}
)
