// Package cli implements the ads-analyst command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/malbeclabs/ads-analyst/internal/config"
	"github.com/malbeclabs/ads-analyst/internal/logger"
	"github.com/malbeclabs/ads-analyst/pkg/pipeline"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// Set by the linker at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// LLMFactory builds the model client used by a run.
type LLMFactory func(cfg *config.Config, log *slog.Logger) (pipeline.LLMClient, error)

// Options wires the process environment into the commands.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Clock  clockwork.Clock
	NewLLM LLMFactory
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.Stdout == nil {
		out.Stdout = os.Stdout
	}
	if out.Stderr == nil {
		out.Stderr = os.Stderr
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.NewLLM == nil {
		out.NewLLM = newAnthropicLLM
	}
	return &out
}

// Run executes the CLI with the process arguments.
func Run() ExitCode {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	return Execute(context.Background(), os.Args[1:], Options{})
}

// Execute runs the root command with args and reports failures on stderr.
func Execute(ctx context.Context, args []string, opts Options) ExitCode {
	o := opts.withDefaults()
	rootCmd := NewRootCmd(o)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(o.Stderr, "Error: %v\n", err)
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(opts *Options) *cobra.Command {
	opts = opts.withDefaults()
	rootCmd := &cobra.Command{
		Use:           "ads-analyst",
		Short:         "Analyze ad performance data and propose creatives with an LLM.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)
	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		NewRunCmd(opts).Command(),
		NewSummarizeCmd(opts).Command(),
	)
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", config.DefaultPath, "path to the YAML configuration file")
	fs.BoolP("verbose", "v", false, "set debug logging level")
}

// globals reads the persistent flags and returns the loaded configuration and a logger.
func globals(cmd *cobra.Command, opts *Options) (*config.Config, *slog.Logger, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	log := logger.NewWithWriter(opts.Stderr, verbose)
	cfg, err := config.Load(path, opts.Getenv)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// overrideString replaces *dst with the flag value when the flag was set.
func overrideString(fs *pflag.FlagSet, name string, dst *string) error {
	if !fs.Changed(name) {
		return nil
	}
	v, err := fs.GetString(name)
	if err != nil {
		return fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	*dst = v
	return nil
}

func newAnthropicLLM(cfg *config.Config, log *slog.Logger) (pipeline.LLMClient, error) {
	client, err := pipeline.NewAnthropicLLMClient(pipeline.AnthropicConfig{
		Logger:    log,
		APIKey:    cfg.APIKey,
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
