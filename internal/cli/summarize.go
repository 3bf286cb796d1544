package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

type SummarizeCmd struct {
	opts *Options
}

func NewSummarizeCmd(opts *Options) *SummarizeCmd {
	return &SummarizeCmd{opts: opts}
}

func (c *SummarizeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Print the dataset statistics without calling the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := globals(cmd, c.opts)
			if err != nil {
				return err
			}
			if err := overrideString(cmd.Flags(), "data", &cfg.DataPath); err != nil {
				return err
			}
			asTable, err := cmd.Flags().GetBool("table")
			if err != nil {
				return fmt.Errorf("failed to get table flag: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			s := &summary.FileSummarizer{
				Logger:  log,
				Path:    cfg.DataPath,
				Load:    cfg.DatasetOptions(),
				Options: cfg.SummaryOptions(),
			}
			stats, err := s.Summarize(cmd.Context())
			if err != nil {
				return err
			}

			if asTable {
				printCampaigns(cmd.OutOrStdout(), stats)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().String("data", "", "path to the ads dataset (overrides data_path)")
	cmd.Flags().Bool("table", false, "print a campaign table instead of JSON")

	return cmd
}

func printCampaigns(w io.Writer, stats *summary.Statistics) {
	o := stats.Overview
	fmt.Fprintf(w, "Rows: %d  Dates: %s .. %s  Spend: %.2f  Revenue: %.2f  ROAS: %.2f\n",
		o.TotalRows, o.DateRange.Start, o.DateRange.End, o.TotalSpend, o.TotalRevenue, o.OverallROAS)

	low := make(map[string]bool, len(stats.LowPerformers))
	for _, lp := range stats.LowPerformers {
		low[lp.Campaign] = true
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Campaign", "Spend", "Revenue", "Purchases", "CTR\n(%)", "ROAS", "Low CTR"})
	for _, c := range stats.PerformanceByCampaign {
		flag := ""
		if low[c.Name] {
			flag = "yes"
		}
		table.Append([]string{
			c.Name,
			fmt.Sprintf("%.2f", c.Spend),
			fmt.Sprintf("%.2f", c.Revenue),
			fmt.Sprintf("%.0f", c.Purchases),
			fmt.Sprintf("%.2f%%", c.CTR*100),
			fmt.Sprintf("%.2f", c.ROAS),
			flag,
		})
	}
	table.Render()
}
