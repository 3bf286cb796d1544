// Package config loads the analyst configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/malbeclabs/ads-analyst/pkg/dataset"
	"github.com/malbeclabs/ads-analyst/pkg/pipeline"
	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

const (
	DefaultPath      = "config/config.yaml"
	DefaultOutputDir = "reports"
	DefaultLogDir    = "logs"
)

// Environment variables that override file values.
const (
	EnvDataPath  = "DATA_CSV"
	EnvModel     = "ANTHROPIC_MODEL"
	EnvAPIKey    = "ANTHROPIC_API_KEY"
	EnvOutputDir = "ADS_ANALYST_OUTPUT_DIR"
	EnvLogDir    = "ADS_ANALYST_LOG_DIR"
)

var (
	ErrMissingConfidenceMin = errors.New("confidence_min is required")
	ErrMissingAPIKey        = errors.New(EnvAPIKey + " is required")
)

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type Config struct {
	DataPath   string `yaml:"data_path"`
	DateFormat string `yaml:"date_format"`
	Delimiter  string `yaml:"delimiter"`
	OutputDir  string `yaml:"output_dir"`
	LogDir     string `yaml:"log_dir"`

	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`

	ConfidenceMin *float64 `yaml:"confidence_min"`
	MaxRetries    *int     `yaml:"max_retries"`
	MaxInsights   int      `yaml:"max_insights"`

	// Thresholds are pointers so an explicit 0 is kept; only absent keys take defaults.
	LowCTRThreshold    *float64 `yaml:"low_ctr_threshold"`
	MinSpendThreshold  *float64 `yaml:"min_spend_threshold"`
	TopSpendThreshold  *float64 `yaml:"top_spend_threshold"`
	TopMessageMinSpend *float64 `yaml:"top_message_min_spend"`

	S3 S3Config `yaml:"s3"`

	// APIKey only comes from the environment.
	APIKey string `yaml:"-"`
}

// Load reads the YAML file at path, applies environment overrides from getenv and fills
// defaults. The result is not validated.
func Load(path string, getenv func(string) string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyEnv(getenv)
	cfg.applyDefaults()
	return cfg, nil
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides file values with non-empty environment values.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv(EnvDataPath); v != "" {
		c.DataPath = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := getenv(EnvLogDir); v != "" {
		c.LogDir = v
	}
	c.APIKey = getenv(EnvAPIKey)
}

func (c *Config) applyDefaults() {
	if c.DateFormat == "" {
		c.DateFormat = dataset.DefaultDateFormat
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.Model == "" {
		c.Model = string(pipeline.DefaultModel)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = pipeline.DefaultMaxTokens
	}
	if c.MaxRetries == nil {
		n := pipeline.DefaultMaxRetries
		c.MaxRetries = &n
	}
	if c.MaxInsights == 0 {
		c.MaxInsights = pipeline.DefaultMaxInsights
	}
	defaultFloat(&c.LowCTRThreshold, summary.DefaultLowCTRThreshold)
	defaultFloat(&c.MinSpendThreshold, summary.DefaultMinSpendThreshold)
	defaultFloat(&c.TopSpendThreshold, summary.DefaultTopSpendThreshold)
	defaultFloat(&c.TopMessageMinSpend, summary.DefaultTopMessageMinSpend)
}

// Validate checks the keys every command needs.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return errors.New("data_path is required")
	}
	if c.ConfidenceMin == nil {
		return ErrMissingConfidenceMin
	}
	if v := *c.ConfidenceMin; v < 0 || v > 1 {
		return fmt.Errorf("confidence_min must be within [0, 1], got %v", v)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", *c.MaxRetries)
	}
	if c.MaxInsights < 0 {
		return fmt.Errorf("max_insights must not be negative, got %d", c.MaxInsights)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens)
	}
	for name, v := range map[string]*float64{
		"low_ctr_threshold":     c.LowCTRThreshold,
		"min_spend_threshold":   c.MinSpendThreshold,
		"top_spend_threshold":   c.TopSpendThreshold,
		"top_message_min_spend": c.TopMessageMinSpend,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, *v)
		}
	}
	if utf8.RuneCountInString(c.Delimiter) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if _, err := dataset.Layout(c.DateFormat); err != nil {
		return fmt.Errorf("invalid date_format: %w", err)
	}
	return nil
}

// ValidateForRun additionally requires the API credentials.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return pipeline.DefaultMaxRetries
	}
	return *c.MaxRetries
}

func (c *Config) DatasetOptions() dataset.Options {
	opts := dataset.Options{DateFormat: c.DateFormat}
	if r, _ := utf8.DecodeRuneInString(c.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	return opts
}

func (c *Config) SummaryOptions() summary.Options {
	opts := summary.DefaultOptions()
	setFloat(&opts.LowCTRThreshold, c.LowCTRThreshold)
	setFloat(&opts.MinSpendThreshold, c.MinSpendThreshold)
	setFloat(&opts.TopSpendThreshold, c.TopSpendThreshold)
	setFloat(&opts.TopMessageMinSpend, c.TopMessageMinSpend)
	return opts
}

func defaultFloat(p **float64, v float64) {
	if *p == nil {
		*p = &v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
