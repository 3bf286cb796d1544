package summary

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/ads-analyst/pkg/dataset"
)

// FileSummarizer loads a dataset file and summarizes it.
type FileSummarizer struct {
	Logger  *slog.Logger
	Path    string
	Load    dataset.Options
	Options Options
}

// Summarize loads the dataset and computes its statistics. Load errors are returned
// wrapped; callers treat them as fatal.
func (s *FileSummarizer) Summarize(ctx context.Context) (*Statistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}

	if s.Logger != nil {
		s.Logger.Info("summary: loading dataset", "path", s.Path)
	}
	rows, err := dataset.Load(s.Path, s.Load)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	stats, err := Summarize(rows, s.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize dataset: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("summary: dataset summarized",
			"rows", stats.Overview.TotalRows,
			"campaigns", stats.Overview.UniqueCampaigns,
			"lowPerformers", len(stats.LowPerformers),
			"topPerformers", len(stats.TopPerformers))
	}
	return stats, nil
}
