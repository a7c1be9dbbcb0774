package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Thresholds.SingleColumnSelectivity != 0.2 {
		t.Errorf("SingleColumnSelectivity = %g, want 0.2", cfg.Thresholds.SingleColumnSelectivity)
	}
	if cfg.Cost.SeqRowCost != 1.0 || cfg.Cost.IndexRowCost != 0.2 || cfg.Cost.IndexEntryOverhead != 4.0 {
		t.Errorf("unexpected cost defaults: %+v", cfg.Cost)
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/adv"
	cfg.Resolve()

	if cfg.Source.Path != filepath.Join("/tmp/adv", "snapshot.yaml") {
		t.Errorf("Source.Path = %q", cfg.Source.Path)
	}
	if cfg.History.Path != filepath.Join("/tmp/adv", "history.db") {
		t.Errorf("History.Path = %q", cfg.History.Path)
	}
	if cfg.Archive.Storage.Path != filepath.Join("/tmp/adv", "archive") {
		t.Errorf("Archive.Storage.Path = %q", cfg.Archive.Storage.Path)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "compact" }},
		{"bad source", func(c *Config) { c.Source.Type = "kafka" }},
		{"s3 without bucket", func(c *Config) { c.Archive.Storage.Type = "s3" }},
		{"zero timeout", func(c *Config) { c.Run.Timeout = 0 }},
		{"no parallelism", func(c *Config) { c.Run.MaxParallelRuns = 0 }},
		{"selectivity above one", func(c *Config) { c.Thresholds.PartialSelectivity = 1.5 }},
		{"negative benefit floor", func(c *Config) { c.Thresholds.MinAbsoluteBenefit = -1 }},
		{"zero seq cost", func(c *Config) { c.Cost.SeqRowCost = 0 }},
		{"dominance one", func(c *Config) { c.Partition.DominanceFraction = 1 }},
		{"skew below one", func(c *Config) { c.Partition.SkewTolerance = 0.5 }},
		{"negative growth horizon", func(c *Config) { c.Partition.GrowthHorizon = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"advisor.yaml": "mode: run\nrun:\n  timeout: 5s\nthresholds:\n  min_absolute_benefit: 42\n",
		"advisor.json": `{"mode":"run","run":{"timeout":5000000000},"thresholds":{"min_absolute_benefit":42}}`,
		"advisor.toml": "mode = \"run\"\n[run]\ntimeout = \"5s\"\n[thresholds]\nmin_absolute_benefit = 42.0\n",
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile: %v", err)
			}
			if cfg.Mode != ModeRun {
				t.Errorf("Mode = %q, want run", cfg.Mode)
			}
			if cfg.Run.Timeout != 5*time.Second {
				t.Errorf("Run.Timeout = %s, want 5s", cfg.Run.Timeout)
			}
			if cfg.Thresholds.MinAbsoluteBenefit != 42 {
				t.Errorf("MinAbsoluteBenefit = %g, want 42", cfg.Thresholds.MinAbsoluteBenefit)
			}
			// Unset values keep their defaults
			if cfg.Thresholds.SingleColumnSelectivity != 0.2 {
				t.Errorf("SingleColumnSelectivity = %g, want default", cfg.Thresholds.SingleColumnSelectivity)
			}
		})
	}

	if _, err := LoadFromFile(filepath.Join(dir, "advisor.ini")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ADVISOR_MODE", "run")
	t.Setenv("ADVISOR_RUN_TIMEOUT", "2s")
	t.Setenv("ADVISOR_MAX_PARALLEL_RUNS", "8")
	t.Setenv("ADVISOR_STORAGE_TYPE", "s3")
	t.Setenv("ADVISOR_S3_BUCKET", "reports")
	t.Setenv("ADVISOR_HISTORY_ENABLED", "false")
	t.Setenv("ADVISOR_HISTORY_WEIGHT", "0.25")

	cfg := DefaultConfig()
	if cfg.Thresholds.HistoryWeight != 0 {
		t.Errorf("history weighting should be off by default, got %g", cfg.Thresholds.HistoryWeight)
	}
	LoadFromEnv(cfg)

	if cfg.Mode != ModeRun {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Run.Timeout != 2*time.Second {
		t.Errorf("Run.Timeout = %s", cfg.Run.Timeout)
	}
	if cfg.Run.MaxParallelRuns != 8 {
		t.Errorf("MaxParallelRuns = %d", cfg.Run.MaxParallelRuns)
	}
	if cfg.Archive.Storage.Type != "s3" || cfg.Archive.Storage.S3.Bucket != "reports" {
		t.Errorf("storage = %+v", cfg.Archive.Storage)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled")
	}
	if cfg.Thresholds.HistoryWeight != 0.25 {
		t.Errorf("HistoryWeight = %g", cfg.Thresholds.HistoryWeight)
	}
}
