// Package config builds the run configuration from defaults, a .env file,
// environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
)

// Environment variables read by Parse.
const (
	EnvBaseURL   = "MEDIAPROBE_BASE_URL"
	EnvAPIKey    = "MEDIAPROBE_API_KEY"
	EnvLegacyKey = "API_KEY"
)

// Output formats accepted by -format.
var Formats = []string{"text", "json", "jsonl", "junit", "markdown", "csv", "template"}

// Config holds all CLI configuration options
type Config struct {
	// Target settings
	BaseURL string `validate:"required,http_url"`
	APIKey  string `validate:"omitempty,max=512"`
	Origin  string `validate:"omitempty,http_url"` // CORS probe origin override

	// Execution settings
	Timeout      time.Duration `validate:"min=0"`          // whole-request ceiling (default 60s)
	PollAttempts int           `validate:"min=0,max=600"`  // scenario poll budget (default 10)
	BurstSize    int           `validate:"min=0,max=1000"` // rate-limit burst (default 20)
	RateLimit    float64       `validate:"min=0"`          // requests per second ceiling (0 = unlimited)
	Proxy        string        `validate:"omitempty,url"`  // HTTP/SOCKS proxy URL
	SkipVerify   bool          // Skip TLS verification
	AssumeYes    bool          // Continue without a key without asking
	JobID        string        `validate:"omitempty,max=256"` // poll command only

	// Scenario settings
	FixturesPath string // YAML fixtures replacing the embedded ones
	AllPlatforms bool   // Run every fixture platform
	WaitHealthy  bool   // Retry /health with backoff before the run
	SkipHealth   bool   // Skip the /health preflight

	// Output settings
	OutputFile   string // Report file (empty = no report)
	OutputFormat string `validate:"omitempty,oneof=text json jsonl junit markdown csv template"`
	TemplatePath string // Custom report template for -format template
	Verbose      bool
	Silent       bool
	NoColor      bool

	// Integrations
	MetricsPort  int    `validate:"min=0,max=65535"`
	OTelEndpoint string `validate:"omitempty,hostname_port"`
	OTelInsecure bool
	WebhookURL   string `validate:"omitempty,http_url"`
	HistoryPath  string // SQLite run history database
	HistoryLimit int    `validate:"min=0"`

	EnvFile string
}

// Default returns the configuration before any input is applied.
func Default() *Config {
	return &Config{
		BaseURL:      defaults.DefaultBaseURL,
		Timeout:      duration.HTTPMax,
		PollAttempts: defaults.DemoPollAttempts,
		BurstSize:    defaults.BurstSize,
		OutputFormat: "text",
		HistoryLimit: 10,
		EnvFile:      ".env",
	}
}

var validate = validator.New()

// Parse builds the configuration for command from args. Usage and flag
// errors are written to output.
func Parse(command string, args []string, output io.Writer) (*Config, error) {
	cfg := Default()
	flags := flag.NewFlagSet(defaults.ToolName+" "+command, flag.ContinueOnError)
	flags.SetOutput(output)
	cfg.register(flags, command)

	timeoutSec := flags.Int("timeout", int(cfg.Timeout/time.Second), "Request timeout ceiling in seconds")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second

	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := cfg.loadEnv(set["env-file"]); err != nil {
		return nil, err
	}
	cfg.applyEnv(set)
	cfg.normalize()

	if command == "poll" && cfg.JobID == "" {
		return nil, fmt.Errorf("%w: -job", ErrMissingRequired)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) register(flags *flag.FlagSet, command string) {
	// === TARGET ===
	flags.StringVar(&c.BaseURL, "url", c.BaseURL, "API base URL (env "+EnvBaseURL+")")
	flags.StringVar(&c.BaseURL, "u", c.BaseURL, "API base URL (alias)")
	flags.StringVar(&c.APIKey, "key", "", "API key (env "+EnvAPIKey+" or "+EnvLegacyKey+")")
	flags.StringVar(&c.EnvFile, "env-file", c.EnvFile, "Environment file to load")
	flags.BoolVar(&c.AssumeYes, "y", false, "Continue without an API key without asking")

	// === EXECUTION ===
	flags.StringVar(&c.Proxy, "proxy", "", "HTTP/SOCKS5 proxy URL")
	flags.BoolVar(&c.SkipVerify, "k", false, "Skip TLS verification")
	flags.Float64Var(&c.RateLimit, "rate", 0, "Max requests per second across the run (0 = unlimited)")
	if command == "poll" {
		flags.StringVar(&c.JobID, "job", "", "Job ID to poll")
		return
	}

	// === PROBES ===
	flags.IntVar(&c.BurstSize, "burst", c.BurstSize, "Rate-limit burst size")
	flags.StringVar(&c.Origin, "origin", "", "Origin sent by the CORS probe")

	// === SCENARIOS ===
	flags.IntVar(&c.PollAttempts, "poll-attempts", c.PollAttempts, "Poll budget per scenario job")
	flags.StringVar(&c.FixturesPath, "fixtures", "", "Platform fixtures YAML file")
	flags.BoolVar(&c.AllPlatforms, "all", false, "Run every fixture platform")
	flags.BoolVar(&c.WaitHealthy, "wait-healthy", false, "Wait for /health with backoff before the run")
	flags.BoolVar(&c.SkipHealth, "no-health", false, "Skip the /health preflight")

	// === OUTPUT ===
	flags.StringVar(&c.OutputFile, "o", "", "Write a report to this file")
	flags.StringVar(&c.OutputFormat, "format", c.OutputFormat, "Report format: "+strings.Join(Formats, ","))
	flags.StringVar(&c.TemplatePath, "template", "", "Report template file (implies -format template)")
	flags.BoolVar(&c.Verbose, "v", false, "Verbose output")
	flags.BoolVar(&c.Silent, "silent", false, "Silent mode - no narration")
	flags.BoolVar(&c.NoColor, "no-color", false, "Disable colored output")

	// === INTEGRATIONS ===
	flags.IntVar(&c.MetricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port")
	flags.StringVar(&c.OTelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint (host:port)")
	flags.BoolVar(&c.OTelInsecure, "otel-insecure", false, "Plaintext OTLP connection")
	flags.StringVar(&c.WebhookURL, "webhook-url", "", "POST probe results and the summary here")
	flags.StringVar(&c.HistoryPath, "history", "", "SQLite run history database")
	flags.IntVar(&c.HistoryLimit, "n", c.HistoryLimit, "Runs to list (history command)")
}

// loadEnv loads the env file. A missing default file is fine; a missing
// file named with -env-file is an error.
func (c *Config) loadEnv(explicit bool) error {
	if c.EnvFile == "" {
		return nil
	}
	err := godotenv.Load(c.EnvFile)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return nil
	default:
		return fmt.Errorf("%w: env file: %v", ErrInvalidConfig, err)
	}
}

// applyEnv fills values not given as flags from the environment.
func (c *Config) applyEnv(set map[string]bool) {
	if !set["url"] && !set["u"] {
		if v := os.Getenv(EnvBaseURL); v != "" {
			c.BaseURL = v
		}
	}
	if !set["key"] {
		if v := os.Getenv(EnvAPIKey); v != "" {
			c.APIKey = v
		} else if v := os.Getenv(EnvLegacyKey); v != "" {
			c.APIKey = v
		}
	}
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.APIKey == defaults.PlaceholderAPIKey {
		c.APIKey = ""
	}
	if c.TemplatePath != "" {
		c.OutputFormat = "template"
	}
	if c.Silent {
		c.Verbose = false
	}
}

// Validate checks field constraints. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.OutputFormat == "template" && c.TemplatePath == "" {
			return fmt.Errorf("%w: -format template needs -template", ErrInvalidConfig)
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Authenticated reports whether a usable API key is configured.
func (c *Config) Authenticated() bool { return c.APIKey != "" }

// NeedsConfirmation reports whether the user should confirm running
// without a key.
func (c *Config) NeedsConfirmation() bool {
	return !c.Authenticated() && !c.AssumeYes
}
