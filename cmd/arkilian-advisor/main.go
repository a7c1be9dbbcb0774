// Package main implements the arkilian-advisor binary. In run mode it advises
// on the given tables once and prints the reports; in serve mode it exposes
// the advisor over HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arkilian/advisor/internal/advisor"
	"github.com/arkilian/advisor/internal/app"
	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/internal/report"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile string
	dataDir    string
	mode       string
	tables     string
	format     string
	sourceType string
	sourcePath string
	httpAddr   string
	grpcAddr   string
	timeout    time.Duration
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML, JSON or TOML)")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for history and archived reports")
	flag.StringVar(&f.mode, "mode", "", "Mode: run or serve")
	flag.StringVar(&f.tables, "table", "", "Comma-separated tables to advise on in run mode (default: all)")
	flag.StringVar(&f.format, "format", "text", "Report format in run mode: text or json")
	flag.StringVar(&f.sourceType, "source", "", "Source type: file or sqlite")
	flag.StringVar(&f.sourcePath, "source-path", "", "Snapshot file or SQLite database path")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.DurationVar(&f.timeout, "timeout", 0, "Per-run timeout for reading inputs")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "arkilian-advisor - index and partition advisor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: arkilian-advisor [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  arkilian-advisor --mode run --source-path snapshot.yaml --table orders\n")
		fmt.Fprintf(os.Stderr, "  arkilian-advisor --mode run --format json --config advisor.toml\n")
		fmt.Fprintf(os.Stderr, "  arkilian-advisor --mode serve --source sqlite --source-path workload.db\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_MODE            Mode (run, serve)\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_SOURCE_TYPE     Source type (file, sqlite)\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_SOURCE_PATH     Source path\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_HTTP_ADDR       HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_GRPC_ADDR       gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  ADVISOR_STORAGE_TYPE    Archive storage type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("arkilian-advisor version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if f.format != "text" && f.format != "json" {
		log.Fatalf("Unknown format %q (must be text or json)", f.format)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if !cfg.ShouldServe() {
		code := runOnce(ctx, application, splitTables(f.tables), f.format, os.Stdout)
		application.Close()
		os.Exit(code)
	}

	printBanner(cfg)
	if err := application.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	stop()
	if err := application.WaitForShutdown(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// runOnce advises on tables and writes the reports. It returns the exit code:
// 0 when every run succeeded, 1 otherwise.
func runOnce(ctx context.Context, a *app.App, tables []string, format string, w io.Writer) int {
	results, err := a.RunOnce(ctx, tables)
	if len(results) == 0 && err != nil {
		log.Printf("Run failed: %v", err)
		return 1
	}
	if werr := writeResults(w, results, format); werr != nil {
		log.Printf("Failed to write reports: %v", werr)
		return 1
	}
	if err != nil {
		log.Printf("Some runs failed: %v", err)
		return 1
	}
	return 0
}

func writeResults(w io.Writer, results []advisor.Result, format string) error {
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		if format == "json" {
			data, err := report.Encode(r.Report)
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := report.Render(w, r.Report); err != nil {
			return err
		}
	}
	return nil
}

func splitTables(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// loadConfig layers defaults or the config file, then the environment, then
// command line flags.
func loadConfig(f flags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.mode != "" {
		cfg.Mode = config.Mode(f.mode)
	}
	if f.sourceType != "" {
		cfg.Source.Type = f.sourceType
	}
	if f.sourcePath != "" {
		cfg.Source.Path = f.sourcePath
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.timeout > 0 {
		cfg.Run.Timeout = f.timeout
	}
	return cfg, nil
}

func printBanner(cfg *config.Config) {
	log.Printf("arkilian-advisor %s", version)
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Source:   %s %s", cfg.Source.Type, cfg.Source.Path)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
	log.Printf("  History:  %v", cfg.History.Enabled)
	log.Printf("  Archive:  %v (%s)", cfg.Archive.Enabled, cfg.Archive.Storage.Type)
}
