package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/ads-analyst/internal/config"
	"github.com/malbeclabs/ads-analyst/internal/metrics"
	"github.com/malbeclabs/ads-analyst/pkg/artifacts"
	"github.com/malbeclabs/ads-analyst/pkg/pipeline"
	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

type RunCmd struct {
	opts *Options
}

func NewRunCmd(opts *Options) *RunCmd {
	return &RunCmd{opts: opts}
}

func (c *RunCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run the analysis pipeline for a query and write the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("query must not be empty")
			}

			cfg, log, err := globals(cmd, c.opts)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			for name, dst := range map[string]*string{
				"data":       &cfg.DataPath,
				"output-dir": &cfg.OutputDir,
				"log-dir":    &cfg.LogDir,
				"model":      &cfg.Model,
				"s3-bucket":  &cfg.S3.Bucket,
				"s3-prefix":  &cfg.S3.Prefix,
			} {
				if err := overrideString(fs, name, dst); err != nil {
					return err
				}
			}
			metricsAddr, err := fs.GetString("metrics-addr")
			if err != nil {
				return fmt.Errorf("failed to get metrics-addr flag: %w", err)
			}
			if err := cfg.ValidateForRun(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if metricsAddr != "" {
				stop, err := serveMetrics(log, metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			return c.run(ctx, cmd.OutOrStdout(), cfg, log, query)
		},
	}

	cmd.Flags().String("data", "", "path to the ads dataset (overrides data_path)")
	cmd.Flags().String("output-dir", "", "directory for insights, creatives and the report")
	cmd.Flags().String("log-dir", "", "directory for the execution trace")
	cmd.Flags().String("model", "", "Anthropic model to use")
	cmd.Flags().String("metrics-addr", "", "address to serve prometheus metrics on, e.g. :9090")
	cmd.Flags().String("s3-bucket", "", "upload artifacts to this S3 bucket instead of local directories")
	cmd.Flags().String("s3-prefix", "", "key prefix for uploaded artifacts")

	return cmd
}

func (c *RunCmd) run(ctx context.Context, out io.Writer, cfg *config.Config, log *slog.Logger, query string) error {
	llm, err := c.opts.NewLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}
	gen, err := pipeline.NewLLMGenerator(pipeline.GeneratorConfig{
		Logger:          log,
		LLM:             llm,
		MaxInsights:     cfg.MaxInsights,
		ConfidenceMin:   *cfg.ConfidenceMin,
		LowCTRThreshold: cfg.LowCTRThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	p, err := pipeline.New(&pipeline.Config{
		Logger:    log,
		Clock:     c.opts.Clock,
		Generator: gen,
		Summarizer: &summary.FileSummarizer{
			Logger:  log,
			Path:    cfg.DataPath,
			Load:    cfg.DatasetOptions(),
			Options: cfg.SummaryOptions(),
		},
		ConfidenceMin: *cfg.ConfidenceMin,
		MaxRetries:    cfg.Retries(),
	})
	if err != nil {
		return err
	}

	output, logs, err := newSinks(ctx, cfg)
	if err != nil {
		return err
	}
	publisher, err := artifacts.NewPublisher(&artifacts.PublisherConfig{
		Logger: log,
		Clock:  c.opts.Clock,
		Output: output,
		Logs:   logs,
	})
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, query)
	if err != nil {
		return err
	}
	locs, err := publisher.Publish(ctx, res)
	if err != nil {
		return err
	}

	printRunSummary(out, res, locs)
	return nil
}

// newSinks returns the output and log sinks. With a bucket configured both live under
// the S3 prefix, named after the local directories.
func newSinks(ctx context.Context, cfg *config.Config) (artifacts.Sink, artifacts.Sink, error) {
	if cfg.S3.Bucket == "" {
		return artifacts.NewFileSink(cfg.OutputDir), artifacts.NewFileSink(cfg.LogDir), nil
	}
	output, err := artifacts.NewS3SinkFromDefaultConfig(ctx, cfg.S3.Bucket, path.Join(cfg.S3.Prefix, filepath.Base(cfg.OutputDir)))
	if err != nil {
		return nil, nil, err
	}
	logs, err := artifacts.NewS3SinkFromDefaultConfig(ctx, cfg.S3.Bucket, path.Join(cfg.S3.Prefix, filepath.Base(cfg.LogDir)))
	if err != nil {
		return nil, nil, err
	}
	return output, logs, nil
}

// serveMetrics starts a prometheus endpoint and returns a function that stops it.
func serveMetrics(log *slog.Logger, addr string) (func(), error) {
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Prometheus metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printRunSummary(w io.Writer, res *pipeline.RunResult, locs artifacts.Locations) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Run", "Value"})
	table.Append([]string{"Run ID", res.RunID})
	table.Append([]string{"Query", res.Query})
	table.Append([]string{"Validated insights", fmt.Sprintf("%d", len(res.Insights))})
	table.Append([]string{"Creative recommendations", fmt.Sprintf("%d", len(res.Creatives))})
	table.Append([]string{"Refinements", fmt.Sprintf("%d", res.Refinements)})
	table.Append([]string{"Execution time", res.ExecutionTime.Round(time.Millisecond).String()})
	table.Render()

	names := make([]string, 0, len(locs))
	for name := range locs {
		names = append(names, name)
	}
	sort.Strings(names)

	table = tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Artifact", "Location"})
	for _, name := range names {
		table.Append([]string{name, locs[name]})
	}
	table.Render()
}
