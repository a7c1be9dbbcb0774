package app

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "github.com/arkilian/advisor/internal/api/grpc"
	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const snapshot = `
tables:
  - name: orders
    row_count: 1000000
    write_frequency: 10
    columns:
      - column: user_id
        kind: numeric
        distinct_count: 1000
    queries:
      - query: SELECT * FROM orders WHERE user_id = 42
        execution_ms: 40
        count: 500
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.yaml")
	if err := os.WriteFile(path, []byte(snapshot), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeRun
	cfg.DataDir = dir
	cfg.Source = config.SourceConfig{Type: "file", Path: path}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	return cfg
}

func TestRunOnceArchivesAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	results, err := a.RunOnce(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Table != "orders" || results[0].Report == nil {
		t.Fatalf("unexpected results %+v", results)
	}
	if got := results[0].Report.Summary.IndexesRecommended; got != 1 {
		t.Errorf("IndexesRecommended = %d, want 1", got)
	}

	latest, err := a.Archive().Latest(ctx, "orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.Table != "orders" || len(latest.Recommendations) != len(results[0].Report.Recommendations) {
		t.Errorf("archived report differs: %+v", latest)
	}

	runs, err := a.history.RunCount(ctx, "orders")
	if err != nil || runs != 1 {
		t.Errorf("RunCount = %d, %v", runs, err)
	}
}

// TestRunOnceRepeatsIdentically runs the default configuration twice over
// the same snapshot. The second run sees the first in history.
func TestRunOnceRepeatsIdentically(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	var encoded [][]byte
	for i := 0; i < 2; i++ {
		results, err := a.RunOnce(ctx, []string{"orders"})
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		data, err := report.Encode(results[0].Report)
		if err != nil {
			t.Fatalf("run %d: encode: %v", i, err)
		}
		encoded = append(encoded, data)
	}

	if runs, err := a.history.RunCount(ctx, "orders"); err != nil || runs != 2 {
		t.Fatalf("RunCount = %d, %v", runs, err)
	}
	if !bytes.Equal(encoded[0], encoded[1]) {
		t.Errorf("reports differ:\n%s\n%s", encoded[0], encoded[1])
	}
}

func TestRunOnceJoinsFailures(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	results, err := a.RunOnce(ctx, []string{"orders", "  "})
	if err == nil || !strings.Contains(err.Error(), "table is required") {
		t.Errorf("expected the blank table to fail, got %v", err)
	}
	if len(results) != 2 || results[0].Err != nil || results[1].Err == nil {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "sometimes"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected invalid mode to be rejected")
	}

	cfg = testConfig(t)
	cfg.Source.Path = filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected missing snapshot to be rejected")
	}
}

func TestServeHTTPAndGRPC(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Mode = config.ModeServe

	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			a.Stop(context.Background())
		}
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Post("http://"+a.HTTPAddr()+"/v1/advise", "application/json", strings.NewReader(`{"table":"orders"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Report-Key") == "" {
		t.Errorf("advise: status = %d, key = %q", resp.StatusCode, resp.Header.Get("X-Report-Key"))
	}

	resp, err = client.Get("http://" + a.HTTPAddr() + "/v1/reports/orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reports: status = %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient(a.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	conn.Close()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v", hc.GetStatus())
	}

	if err := a.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	stopped = true
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Get("http://" + a.HTTPAddr() + "/health"); err == nil {
		t.Error("expected the HTTP server to be closed")
	}
}
