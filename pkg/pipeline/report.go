package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// ComposeReport renders the markdown report for a run. Output depends only on the
// arguments.
func ComposeReport(query string, generated time.Time, insights []Evaluation, creatives []Creative) string {
	var sb strings.Builder

	sb.WriteString("# Facebook Ads Performance Analysis\n\n")
	fmt.Fprintf(&sb, "**Query:** %s\n\n", query)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", generated.Format(reportTimeLayout))
	sb.WriteString("---\n\n")
	sb.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&sb, "Analysis completed with %d validated insights and %d creative recommendations.\n\n",
		len(insights), len(creatives))
	sb.WriteString("## Key Insights\n\n")

	for i, insight := range insights {
		fmt.Fprintf(&sb, "\n### %d. %s\n\n", i+1, insight.Hypothesis)
		fmt.Fprintf(&sb, "**Confidence:** %.2f%%\n\n", insight.Confidence*100)
		fmt.Fprintf(&sb, "**Evidence:**\n%s\n\n", insight.Evidence)
		fmt.Fprintf(&sb, "**Recommendation:**\n%s\n\n", orDefault(insight.Recommendation, "See creative recommendations below"))
		sb.WriteString("---\n")
	}

	if len(creatives) > 0 {
		sb.WriteString("\n## Creative Recommendations\n\n")
		sb.WriteString("These recommendations are based on low-performing campaigns and existing high-performing creative patterns.\n\n")

		for i, c := range creatives {
			fmt.Fprintf(&sb, "\n### Creative Set %d\n\n", i+1)
			fmt.Fprintf(&sb, "**Target Campaign:** %s  \n", orDefault(c.Campaign, "N/A"))
			fmt.Fprintf(&sb, "**Current CTR:** %s  \n", strconv.FormatFloat(float64(c.CurrentCTR), 'f', -1, 64))
			fmt.Fprintf(&sb, "**Issue:** %s\n\n", orDefault(c.Issue, "N/A"))
			sb.WriteString("**Recommended Messages:**\n")
			for _, msg := range c.RecommendedMessages {
				fmt.Fprintf(&sb, "- %s\n", msg)
			}
			fmt.Fprintf(&sb, "\n**Rationale:** %s\n\n---\n", orDefault(c.Rationale, "N/A"))
		}
	}

	sb.WriteString("\n## Next Steps\n\n")
	sb.WriteString("1. Review high-confidence insights and prioritize action items\n")
	sb.WriteString("2. Test recommended creative variations with A/B testing\n")
	sb.WriteString("3. Monitor performance metrics after implementing changes\n")
	sb.WriteString("4. Re-run analysis in 7-14 days to measure impact\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString("*Generated by Kasparro Agentic FB Analyst*\n")

	return sb.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
