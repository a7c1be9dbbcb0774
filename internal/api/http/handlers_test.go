package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/arkilian/advisor/internal/advisor"
	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/observability"
	"github.com/arkilian/advisor/internal/source"
	"github.com/arkilian/advisor/internal/storage"
	"github.com/arkilian/advisor/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	errs map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, table string) (*types.RecommendationReport, error) {
	if err := f.errs[table]; err != nil {
		return nil, err
	}
	return &types.RecommendationReport{
		Table:           table,
		Recommendations: []types.Recommendation{},
		Summary:         types.Summary{QueriesSampled: 10},
	}, nil
}

func (f *fakeRunner) RunMany(ctx context.Context, tables []string) []advisor.Result {
	out := make([]advisor.Result, 0, len(tables))
	for _, t := range tables {
		r, err := f.Run(ctx, t)
		out = append(out, advisor.Result{Table: t, Report: r, Err: err})
	}
	return out
}

type fakeArchive struct {
	mu    sync.Mutex
	saved map[string]*types.RecommendationReport
	err   error
}

func (f *fakeArchive) Save(ctx context.Context, r *types.RecommendationReport) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.saved == nil {
		f.saved = make(map[string]*types.RecommendationReport)
	}
	f.saved[r.Table] = r
	return "reports/" + r.Table + "/1.json.sz", nil
}

func (f *fakeArchive) Latest(ctx context.Context, table string) (*types.RecommendationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.saved[table]
	if !ok {
		return nil, adverrors.NewStorageError(adverrors.CodeObjectNotFound, "no archived report for "+table, storage.ErrObjectNotFound)
	}
	return r, nil
}

type fakeIngester struct {
	table   string
	records []source.QueryRecord
}

func (f *fakeIngester) AppendQueries(ctx context.Context, table string, records []source.QueryRecord) (int, error) {
	f.table = table
	f.records = append(f.records, records...)
	return len(records), nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdviseSingleTable(t *testing.T) {
	archive := &fakeArchive{}
	h := NewRouter(Handlers{Runner: &fakeRunner{}, Archive: archive})

	rec := do(t, h, http.MethodPost, "/v1/advise", `{"table":" Orders "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if got := rec.Header().Get("X-Report-Key"); got != "reports/orders/1.json.sz" {
		t.Errorf("X-Report-Key = %q", got)
	}

	var rep types.RecommendationReport
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Table != "orders" || rep.Summary.QueriesSampled != 10 {
		t.Errorf("unexpected report %+v", rep)
	}
	if archive.saved["orders"] == nil {
		t.Error("report was not archived")
	}
}

func TestAdviseBatch(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"invoices": adverrors.NewTimedOutError("workload sampling", context.DeadlineExceeded),
	}}
	h := NewRouter(Handlers{Runner: runner})

	rec := do(t, h, http.MethodPost, "/v1/advise", `{"tables":["orders","invoices","orders"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp AdviseBatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 2 || resp.Failed != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Results[0].Report == nil || resp.Results[1].Code != adverrors.CodeTimedOut {
		t.Errorf("unexpected results %+v", resp.Results)
	}
}

func TestAdviseErrors(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"slow":   adverrors.NewTimedOutError("statistics", context.DeadlineExceeded),
		"broken": adverrors.Wrap(adverrors.ErrCategoryStatistics, adverrors.CodeProviderFailed, "statistics provider failed", errors.New("boom")),
		"odd":    errors.New("unexpected"),
	}}
	h := NewRouter(Handlers{Runner: runner})

	tests := []struct {
		method string
		body   string
		status int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{", http.StatusBadRequest},
		{http.MethodPost, `{"table":"  "}`, http.StatusBadRequest},
		{http.MethodPost, `{"table":"slow"}`, http.StatusGatewayTimeout},
		{http.MethodPost, `{"table":"broken"}`, http.StatusBadGateway},
		{http.MethodPost, `{"table":"odd"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, "/v1/advise", tt.body)
		if rec.Code != tt.status {
			t.Errorf("%s %q: status = %d, want %d", tt.method, tt.body, rec.Code, tt.status)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" || resp.RequestID == "" {
			t.Errorf("%s %q: unexpected error body %s", tt.method, tt.body, rec.Body.String())
		}
	}
}

func TestAdviseArchiveFailureStillAnswers(t *testing.T) {
	h := NewRouter(Handlers{Runner: &fakeRunner{}, Archive: &fakeArchive{err: errors.New("disk full")}})

	rec := do(t, h, http.MethodPost, "/v1/advise", `{"table":"orders"}`)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Report-Key") != "" {
		t.Errorf("status = %d, key = %q", rec.Code, rec.Header().Get("X-Report-Key"))
	}
}

func TestReports(t *testing.T) {
	archive := &fakeArchive{}
	h := NewRouter(Handlers{Runner: &fakeRunner{}, Archive: archive})

	if rec := do(t, h, http.MethodGet, "/v1/reports/orders", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	do(t, h, http.MethodPost, "/v1/advise", `{"table":"orders"}`)

	rec := do(t, h, http.MethodGet, "/v1/reports/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rep types.RecommendationReport
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil || rep.Table != "orders" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/reports/orders?format=text", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Table orders:") {
		t.Errorf("unexpected text report %s", rec.Body.String())
	}

	if rec := do(t, h, http.MethodDelete, "/v1/reports/orders", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestReportsRouteNeedsArchive(t *testing.T) {
	h := NewRouter(Handlers{Runner: &fakeRunner{}})
	if rec := do(t, h, http.MethodGet, "/v1/reports/orders", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStats(t *testing.T) {
	usage := observability.NewUsageTracker(time.Hour)
	usage.RecordShape(&types.QueryShape{
		Table:     "orders",
		Frequency: 30,
		Terms: []types.Term{
			{Column: "user_id", Operator: "="},
			{Column: "created_at", Operator: ">="},
		},
	})
	usage.RecordShape(&types.QueryShape{
		Table:     "orders",
		Frequency: 5,
		Terms:     []types.Term{{Column: "status", Operator: "="}},
	})
	h := NewRouter(Handlers{Runner: &fakeRunner{}, Usage: usage})

	rec := do(t, h, http.MethodGet, "/v1/stats?table=orders&limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Shapes != 2 || len(resp.Columns) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Columns[0].Column != "created_at" || resp.Columns[1].Column != "user_id" {
		t.Errorf("expected ties broken by column name, got %+v", resp.Columns)
	}

	if rec := do(t, h, http.MethodGet, "/v1/stats?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIngest(t *testing.T) {
	ing := &fakeIngester{}
	h := NewRouter(Handlers{Runner: &fakeRunner{}, Ingester: ing})

	body := `{"table":"Orders","queries":[{"query":"SELECT * FROM orders WHERE id = 1","execution_ms":2.5,"count":3}]}`
	rec := do(t, h, http.MethodPost, "/v1/queries", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Table != "orders" || resp.Appended != 1 || ing.table != "orders" || ing.records[0].Count != 3 {
		t.Errorf("unexpected ingest %+v %+v", resp, ing.records)
	}

	for _, bad := range []string{`{"table":"orders"}`, `{"queries":[{"query":"x"}]}`, `{"table":"orders","queries":[{"query":" "}]}`} {
		if rec := do(t, h, http.MethodPost, "/v1/queries", bad); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestIngestUnsupported(t *testing.T) {
	h := NewRouter(Handlers{Runner: &fakeRunner{}})
	rec := do(t, h, http.MethodPost, "/v1/queries", `{"table":"orders","queries":[{"query":"x"}]}`)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetCorrelationID(r.Context()) != "corr-1" {
			t.Errorf("correlation id not propagated")
		}
		panic("boom")
	})
	h := DefaultMiddleware()(panicky)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp); err != nil || resp.RequestID != "req-1" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := NewRouter(Handlers{Runner: &fakeRunner{}})
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
