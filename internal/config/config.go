// Package config provides unified configuration for the advisor service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Mode represents how the binary runs.
type Mode string

const (
	ModeServe Mode = "serve"
	ModeRun   Mode = "run"
)

// Config holds the unified advisor configuration.
type Config struct {
	// Mode specifies whether to serve requests or run once: serve, run
	Mode Mode `json:"mode" yaml:"mode" toml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http" toml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc" toml:"grpc"`

	// Run configuration
	Run RunConfig `json:"run" yaml:"run" toml:"run"`

	// Thresholds drive candidate generation and recommendation
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds" toml:"thresholds"`

	// Cost holds the cost model constants
	Cost CostConfig `json:"cost" yaml:"cost" toml:"cost"`

	// Partition holds the partitioning advisor settings
	Partition PartitionConfig `json:"partition" yaml:"partition" toml:"partition"`

	// Source configures where workload, statistics and policies come from
	Source SourceConfig `json:"source" yaml:"source" toml:"source"`

	// History configures the cross-run frequency log
	History HistoryConfig `json:"history" yaml:"history" toml:"history"`

	// Archive configures report archiving
	Archive ArchiveConfig `json:"archive" yaml:"archive" toml:"archive"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// RunConfig controls advisory runs.
type RunConfig struct {
	// Timeout bounds the external reads at the start of a run
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	// MaxParallelRuns bounds concurrent runs across tables
	MaxParallelRuns int `json:"max_parallel_runs" yaml:"max_parallel_runs" toml:"max_parallel_runs"`

	// Window is how far back the workload source is sampled
	Window time.Duration `json:"window" yaml:"window" toml:"window"`
}

// Thresholds are the named knobs of the analyzer, candidate generator and cost model.
type Thresholds struct {
	// SingleColumnSelectivity is the upper selectivity bound for single-column candidates (default 0.2)
	SingleColumnSelectivity float64 `json:"single_column_selectivity" yaml:"single_column_selectivity" toml:"single_column_selectivity"`

	// PartialSelectivity is the upper selectivity bound for partial-index null checks (default 0.3)
	PartialSelectivity float64 `json:"partial_selectivity" yaml:"partial_selectivity" toml:"partial_selectivity"`

	// ExpressionMinShapes is how many shapes must share an expression (default 1)
	ExpressionMinShapes int `json:"expression_min_shapes" yaml:"expression_min_shapes" toml:"expression_min_shapes"`

	// DefaultRangeSelectivity is used for range bounds without an exemplar (default 1/3)
	DefaultRangeSelectivity float64 `json:"default_range_selectivity" yaml:"default_range_selectivity" toml:"default_range_selectivity"`

	// MissingStatsSelectivity is used when a column has no statistics (default 0.5)
	MissingStatsSelectivity float64 `json:"missing_stats_selectivity" yaml:"missing_stats_selectivity" toml:"missing_stats_selectivity"`

	// MinAbsoluteBenefit is the minimum benefit for a recommendation
	MinAbsoluteBenefit float64 `json:"min_absolute_benefit" yaml:"min_absolute_benefit" toml:"min_absolute_benefit"`

	// HistoryWeight scales the mean historical frequency added to a shape's weight.
	// Zero keeps runs on identical inputs identical; history is still recorded.
	HistoryWeight float64 `json:"history_weight" yaml:"history_weight" toml:"history_weight"`
}

// CostConfig holds the cost model constants. Units are abstract row-visits.
type CostConfig struct {
	SeqRowCost               float64 `json:"seq_row_cost" yaml:"seq_row_cost" toml:"seq_row_cost"`
	IndexRowCost             float64 `json:"index_row_cost" yaml:"index_row_cost" toml:"index_row_cost"`
	IndexEntryOverhead       float64 `json:"index_entry_overhead" yaml:"index_entry_overhead" toml:"index_entry_overhead"`
	MaintenanceCostPerColumn float64 `json:"maintenance_cost_per_column" yaml:"maintenance_cost_per_column" toml:"maintenance_cost_per_column"`

	// AssumedWriteFrequency is the proxy used when table statistics carry no write frequency
	AssumedWriteFrequency float64 `json:"assumed_write_frequency" yaml:"assumed_write_frequency" toml:"assumed_write_frequency"`
}

// PartitionConfig holds the partitioning advisor settings.
type PartitionConfig struct {
	// DominanceFraction is the share of high-frequency shapes a key column must appear in (exclusive)
	DominanceFraction float64 `json:"dominance_fraction" yaml:"dominance_fraction" toml:"dominance_fraction"`

	// HighFrequencyShape is the minimum shape frequency counted toward dominance
	HighFrequencyShape int64 `json:"high_frequency_shape" yaml:"high_frequency_shape" toml:"high_frequency_shape"`

	// MinPartitionRows is the minimum table size worth partitioning
	MinPartitionRows int64 `json:"min_partition_rows" yaml:"min_partition_rows" toml:"min_partition_rows"`

	// BucketRowCap is the maximum estimated rows per bucket
	BucketRowCap int64 `json:"bucket_row_cap" yaml:"bucket_row_cap" toml:"bucket_row_cap"`

	// MaxBuckets is the maximum number of non-default buckets
	MaxBuckets int `json:"max_buckets" yaml:"max_buckets" toml:"max_buckets"`

	// SkewTolerance is the maximum max/mean ratio of estimated bucket sizes
	SkewTolerance float64 `json:"skew_tolerance" yaml:"skew_tolerance" toml:"skew_tolerance"`

	// ListMaxValues is the largest distinct count eligible for list partitioning
	ListMaxValues int `json:"list_max_values" yaml:"list_max_values" toml:"list_max_values"`

	// GrowthHorizon is how far ahead the table's growth rate is projected when
	// checking MinPartitionRows
	GrowthHorizon time.Duration `json:"growth_horizon" yaml:"growth_horizon" toml:"growth_horizon"`
}

// SourceConfig selects the workload/statistics/policy provider.
type SourceConfig struct {
	// Type is the source type: file, sqlite
	Type string `json:"type" yaml:"type" toml:"type"`

	// Path is the snapshot file or SQLite database path
	Path string `json:"path" yaml:"path" toml:"path"`
}

// HistoryConfig configures the history log.
type HistoryConfig struct {
	// Enabled controls whether runs are recorded and used for weighting
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Path is the SQLite database path
	Path string `json:"path" yaml:"path" toml:"path"`

	// MaxRuns is how many recent runs per table feed the mean frequency
	MaxRuns int `json:"max_runs" yaml:"max_runs" toml:"max_runs"`
}

// ArchiveConfig configures report archiving.
type ArchiveConfig struct {
	// Enabled controls whether completed reports are archived
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Storage is the archive backend
	Storage StorageConfig `json:"storage" yaml:"storage" toml:"storage"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" toml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path" toml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" toml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" toml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
}

// DefaultThresholds returns the documented threshold defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SingleColumnSelectivity: 0.2,
		PartialSelectivity:      0.3,
		ExpressionMinShapes:     1,
		DefaultRangeSelectivity: 1.0 / 3.0,
		MissingStatsSelectivity: 0.5,
		MinAbsoluteBenefit:      1000,
		HistoryWeight:           0,
	}
}

// DefaultCost returns the default cost model constants.
func DefaultCost() CostConfig {
	return CostConfig{
		SeqRowCost:               1.0,
		IndexRowCost:             0.2,
		IndexEntryOverhead:       4.0,
		MaintenanceCostPerColumn: 2.0,
		AssumedWriteFrequency:    1000,
	}
}

// DefaultPartition returns the default partitioning settings.
func DefaultPartition() PartitionConfig {
	return PartitionConfig{
		DominanceFraction:  0.5,
		HighFrequencyShape: 10,
		MinPartitionRows:   10_000_000,
		BucketRowCap:       50_000_000,
		MaxBuckets:         1024,
		SkewTolerance:      4.0,
		ListMaxValues:      64,
		GrowthHorizon:      90 * 24 * time.Hour,
	}
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeServe,
		DataDir: "./data/advisor",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Run: RunConfig{
			Timeout:         30 * time.Second,
			MaxParallelRuns: 4,
			Window:          24 * time.Hour,
		},
		Thresholds: DefaultThresholds(),
		Cost:       DefaultCost(),
		Partition:  DefaultPartition(),
		Source: SourceConfig{
			Type: "file",
		},
		History: HistoryConfig{
			Enabled: true,
			MaxRuns: 10,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Storage: StorageConfig{
				Type: "local",
			},
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/advisor"
	}

	if c.Source.Path == "" {
		switch c.Source.Type {
		case "sqlite":
			c.Source.Path = filepath.Join(c.DataDir, "workload.db")
		default:
			c.Source.Path = filepath.Join(c.DataDir, "snapshot.yaml")
		}
	}

	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}

	if c.Archive.Storage.Path == "" {
		c.Archive.Storage.Path = filepath.Join(c.DataDir, "archive")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServe, ModeRun:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be serve or run)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Source.Type != "file" && c.Source.Type != "sqlite" {
		return fmt.Errorf("invalid source type: %s (must be file or sqlite)", c.Source.Type)
	}

	st := c.Archive.Storage
	if st.Type != "local" && st.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", st.Type)
	}
	if st.Type == "s3" && st.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Run.Timeout <= 0 {
		return fmt.Errorf("run.timeout must be positive, got %s", c.Run.Timeout)
	}
	if c.History.Enabled && c.History.MaxRuns < 1 {
		return fmt.Errorf("history.max_runs must be at least 1, got %d", c.History.MaxRuns)
	}
	if c.Run.MaxParallelRuns < 1 {
		return fmt.Errorf("run.max_parallel_runs must be at least 1, got %d", c.Run.MaxParallelRuns)
	}

	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Cost.Validate(); err != nil {
		return err
	}
	return c.Partition.Validate()
}

// Validate checks that every threshold is in range.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"single_column_selectivity": t.SingleColumnSelectivity,
		"partial_selectivity":       t.PartialSelectivity,
		"default_range_selectivity": t.DefaultRangeSelectivity,
		"missing_stats_selectivity": t.MissingStatsSelectivity,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("thresholds.%s must be in (0, 1], got %g", name, v)
		}
	}
	if t.ExpressionMinShapes < 1 {
		return fmt.Errorf("thresholds.expression_min_shapes must be at least 1, got %d", t.ExpressionMinShapes)
	}
	if t.MinAbsoluteBenefit < 0 {
		return fmt.Errorf("thresholds.min_absolute_benefit must not be negative, got %g", t.MinAbsoluteBenefit)
	}
	if t.HistoryWeight < 0 {
		return fmt.Errorf("thresholds.history_weight must not be negative, got %g", t.HistoryWeight)
	}
	return nil
}

// Validate checks that every cost constant is usable.
func (c CostConfig) Validate() error {
	if c.SeqRowCost <= 0 || c.IndexRowCost <= 0 {
		return fmt.Errorf("cost.seq_row_cost and cost.index_row_cost must be positive")
	}
	if c.IndexEntryOverhead < 0 || c.MaintenanceCostPerColumn < 0 || c.AssumedWriteFrequency < 0 {
		return fmt.Errorf("cost constants must not be negative")
	}
	return nil
}

// Validate checks the partitioning settings.
func (p PartitionConfig) Validate() error {
	if p.DominanceFraction < 0 || p.DominanceFraction >= 1 {
		return fmt.Errorf("partition.dominance_fraction must be in [0, 1), got %g", p.DominanceFraction)
	}
	if p.BucketRowCap <= 0 {
		return fmt.Errorf("partition.bucket_row_cap must be positive, got %d", p.BucketRowCap)
	}
	if p.MaxBuckets < 1 {
		return fmt.Errorf("partition.max_buckets must be at least 1, got %d", p.MaxBuckets)
	}
	if p.SkewTolerance < 1 {
		return fmt.Errorf("partition.skew_tolerance must be at least 1, got %g", p.SkewTolerance)
	}
	if p.GrowthHorizon < 0 {
		return fmt.Errorf("partition.growth_horizon must not be negative, got %s", p.GrowthHorizon)
	}
	return nil
}

// ShouldServe returns true if the HTTP/gRPC servers should run.
func (c *Config) ShouldServe() bool {
	return c.Mode == ModeServe
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ADVISOR_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ADVISOR_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("ADVISOR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Server configuration
	if v := os.Getenv("ADVISOR_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("ADVISOR_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("ADVISOR_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Run configuration
	if v := os.Getenv("ADVISOR_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.Timeout = d
		}
	}
	if v := os.Getenv("ADVISOR_RUN_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.Window = d
		}
	}
	if v := os.Getenv("ADVISOR_MAX_PARALLEL_RUNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Run.MaxParallelRuns)
	}

	// Thresholds
	if v := os.Getenv("ADVISOR_MIN_ABSOLUTE_BENEFIT"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Thresholds.MinAbsoluteBenefit)
	}
	if v := os.Getenv("ADVISOR_ASSUMED_WRITE_FREQUENCY"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Cost.AssumedWriteFrequency)
	}

	// Source configuration
	if v := os.Getenv("ADVISOR_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("ADVISOR_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}

	// History configuration
	if v := os.Getenv("ADVISOR_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ADVISOR_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("ADVISOR_HISTORY_WEIGHT"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Thresholds.HistoryWeight)
	}

	// Archive configuration
	if v := os.Getenv("ADVISOR_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ADVISOR_STORAGE_TYPE"); v != "" {
		cfg.Archive.Storage.Type = v
	}
	if v := os.Getenv("ADVISOR_STORAGE_PATH"); v != "" {
		cfg.Archive.Storage.Path = v
	}
	if v := os.Getenv("ADVISOR_S3_BUCKET"); v != "" {
		cfg.Archive.Storage.S3.Bucket = v
	}
	if v := os.Getenv("ADVISOR_S3_REGION"); v != "" {
		cfg.Archive.Storage.S3.Region = v
	}
	if v := os.Getenv("ADVISOR_S3_ENDPOINT"); v != "" {
		cfg.Archive.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if c.Archive.Enabled && c.Archive.Storage.Type == "local" {
		dirs = append(dirs, c.Archive.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
