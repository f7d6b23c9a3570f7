package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
)

// clearEnv unsets the config variables for one test and restores them after.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvBaseURL, EnvAPIKey, EnvLegacyKey} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func parse(t *testing.T, command string, args ...string) (*Config, error) {
	t.Helper()
	// Keep a stray .env in the working directory out of the tests.
	args = append([]string{"-env-file", ""}, args...)
	return Parse(command, args, io.Discard)
}

// TestConfigDefaults verifies default values are set correctly
func TestConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := parse(t, "run")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.BaseURL != defaults.DefaultBaseURL {
		t.Errorf("BaseURL default: got %q", cfg.BaseURL)
	}
	if cfg.PollAttempts != 10 {
		t.Errorf("PollAttempts default: got %d, want 10", cfg.PollAttempts)
	}
	if cfg.BurstSize != 20 {
		t.Errorf("BurstSize default: got %d, want 20", cfg.BurstSize)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout default: got %v, want 60s", cfg.Timeout)
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("OutputFormat default: got %q", cfg.OutputFormat)
	}
	if cfg.Authenticated() || !cfg.NeedsConfirmation() {
		t.Error("no key should need confirmation")
	}
}

func TestConfigPrecedence(t *testing.T) {
	t.Run("environment over defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvBaseURL, "https://api.example.com/")
		t.Setenv(EnvAPIKey, "env-key")
		cfg, err := parse(t, "run")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.BaseURL != "https://api.example.com" {
			t.Errorf("BaseURL = %q (trailing slash should be trimmed)", cfg.BaseURL)
		}
		if cfg.APIKey != "env-key" {
			t.Errorf("APIKey = %q", cfg.APIKey)
		}
	})

	t.Run("legacy key variable", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvLegacyKey, "legacy")
		cfg, err := parse(t, "run")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.APIKey != "legacy" {
			t.Errorf("APIKey = %q", cfg.APIKey)
		}
	})

	t.Run("flags over environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvBaseURL, "https://env.example.com")
		t.Setenv(EnvAPIKey, "env-key")
		cfg, err := parse(t, "run", "-u", "http://flag.example.com:9000", "-key", "flag-key")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.BaseURL != "http://flag.example.com:9000" || cfg.APIKey != "flag-key" {
			t.Errorf("got %q %q", cfg.BaseURL, cfg.APIKey)
		}
	})

	t.Run("env file below environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvAPIKey, "real-env")
		os.Unsetenv(EnvBaseURL)
		path := filepath.Join(t.TempDir(), "test.env")
		data := EnvBaseURL + "=https://dotenv.example.com\n" + EnvAPIKey + "=dotenv-key\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Parse("run", []string{"-env-file", path}, io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.BaseURL != "https://dotenv.example.com" {
			t.Errorf("BaseURL = %q", cfg.BaseURL)
		}
		if cfg.APIKey != "real-env" {
			t.Errorf("APIKey = %q, environment should win over the env file", cfg.APIKey)
		}
	})

	t.Run("missing explicit env file", func(t *testing.T) {
		clearEnv(t)
		_, err := Parse("run", []string{"-env-file", filepath.Join(t.TempDir(), "nope.env")}, io.Discard)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestPlaceholderKeyCountsAsUnset(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, defaults.PlaceholderAPIKey)
	cfg, err := parse(t, "run")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Authenticated() {
		t.Error("placeholder key should not authenticate")
	}

	cfg, err = parse(t, "run", "-y")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NeedsConfirmation() {
		t.Error("-y should skip confirmation")
	}
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{"bad url", []string{"-u", "not a url"}},
		{"ftp url", []string{"-u", "ftp://example.com"}},
		{"unknown format", []string{"-format", "pdf"}},
		{"template without file", []string{"-format", "template"}},
		{"negative burst", []string{"-burst", "-1"}},
		{"negative rate", []string{"-rate", "-2"}},
		{"port out of range", []string{"-metrics-port", "70000"}},
		{"bad webhook", []string{"-webhook-url", "hooks"}},
		{"bad otel endpoint", []string{"-otel-endpoint", "http://collector"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, "run", tt.args...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestTemplateImpliesFormat(t *testing.T) {
	clearEnv(t)
	cfg, err := parse(t, "run", "-template", "report.tmpl")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputFormat != "template" {
		t.Errorf("OutputFormat = %q", cfg.OutputFormat)
	}
}

func TestPollCommand(t *testing.T) {
	clearEnv(t)
	if _, err := parse(t, "poll"); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("expected ErrMissingRequired, got %v", err)
	}
	cfg, err := parse(t, "poll", "-job", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JobID != "abc" {
		t.Errorf("JobID = %q", cfg.JobID)
	}
	if _, err := parse(t, "poll", "-job", "abc", "-burst", "5"); err == nil {
		t.Error("probe flags are not registered for poll")
	}
}

func TestTimeoutFlag(t *testing.T) {
	clearEnv(t)
	cfg, err := parse(t, "run", "-timeout", "15")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestRateFlagOnEveryCommand(t *testing.T) {
	clearEnv(t)
	cfg, err := parse(t, "run", "-rate", "2.5")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v, want 2.5", cfg.RateLimit)
	}

	cfg, err = parse(t, "poll", "-job", "j1", "-rate", "1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit != 1 {
		t.Errorf("poll RateLimit = %v, want 1", cfg.RateLimit)
	}
}
