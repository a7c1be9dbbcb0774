package main

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/arkilian/advisor/internal/advisor"
	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/pkg/types"
)

func TestSplitTables(t *testing.T) {
	if got := splitTables(" orders, ,invoices "); !reflect.DeepEqual(got, []string{"orders", "invoices"}) {
		t.Errorf("splitTables = %v", got)
	}
	if got := splitTables(""); got != nil {
		t.Errorf("splitTables(\"\") = %v", got)
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("ADVISOR_HTTP_ADDR", ":7000")
	t.Setenv("ADVISOR_SOURCE_TYPE", "sqlite")

	cfg, err := loadConfig(flags{mode: "run", sourcePath: "w.db", grpcAddr: ":7001", timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != config.ModeRun || cfg.Source.Type != "sqlite" || cfg.Source.Path != "w.db" {
		t.Errorf("unexpected source config %+v mode %s", cfg.Source, cfg.Mode)
	}
	if cfg.HTTP.Addr != ":7000" || cfg.GRPC.Addr != ":7001" || cfg.Run.Timeout != time.Second {
		t.Errorf("unexpected overrides %+v %+v %v", cfg.HTTP, cfg.GRPC, cfg.Run.Timeout)
	}

	if _, err := loadConfig(flags{configFile: "advisor.ini"}); err == nil {
		t.Error("expected unreadable config to fail")
	}
}

func TestWriteResults(t *testing.T) {
	results := []advisor.Result{
		{Table: "orders", Report: &types.RecommendationReport{Table: "orders", Recommendations: []types.Recommendation{}}},
		{Table: "broken", Err: errors.New("boom")},
	}

	var buf bytes.Buffer
	if err := writeResults(&buf, results, "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"table": "orders"`) || strings.Contains(buf.String(), "broken") {
		t.Errorf("unexpected json output %s", buf.String())
	}

	buf.Reset()
	if err := writeResults(&buf, results, "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "Table orders:") {
		t.Errorf("unexpected text output %s", buf.String())
	}
}
