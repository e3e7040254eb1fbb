package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"Unset uses default", "", 5 * time.Second},
		{"Go duration", "1500ms", 1500 * time.Millisecond},
		{"Bare milliseconds", "2000", 2 * time.Second},
		{"Garbage uses default", "soon", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DELAY", tt.value)
			if got := getEnvAsDuration("TEST_DELAY", 5*time.Second); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"REQUEST_DELAY", "MAX_RETRIES", "MAX_TOTAL_QUERIES", "MAX_DEPTH_ITERATIONS", "CONCURRENCY", "STRATEGY", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RequestDelay != 5*time.Second {
		t.Errorf("RequestDelay = %v, want 5s", cfg.RequestDelay)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.MaxTotalQueries != 15 || cfg.MaxDepthIterations != 3 {
		t.Errorf("caps = %d/%d, want 15/3", cfg.MaxTotalQueries, cfg.MaxDepthIterations)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}

	opts := cfg.ResearchOptions()
	if opts.Retry.MaxDelay != 60*time.Second {
		t.Errorf("Retry.MaxDelay = %v, want 60s", opts.Retry.MaxDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STRATEGY", "Frontier")
	t.Setenv("CONCURRENCY", "2")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("INDEX_SOURCES", "true")

	cfg := Load()
	if cfg.Strategy != "frontier" {
		t.Errorf("Strategy = %q, want frontier", cfg.Strategy)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if !cfg.IndexSources {
		t.Error("IndexSources = false, want true")
	}
}
