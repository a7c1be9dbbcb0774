package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/arkilian/advisor/internal/advisor"
	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/report"
	"github.com/arkilian/advisor/pkg/types"
)

// Runner runs advisory pipelines.
type Runner interface {
	Run(ctx context.Context, table string) (*types.RecommendationReport, error)
	RunMany(ctx context.Context, tables []string) []advisor.Result
}

// ReportArchive stores reports between runs.
type ReportArchive interface {
	Save(ctx context.Context, r *types.RecommendationReport) (string, error)
	Latest(ctx context.Context, table string) (*types.RecommendationReport, error)
}

// AdviseRequest asks for one run per table.
type AdviseRequest struct {
	Table  string   `json:"table,omitempty"`
	Tables []string `json:"tables,omitempty"`
}

func (r AdviseRequest) tables() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range append([]string{r.Table}, r.Tables...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// TableResult is the outcome for one table of a batch request.
type TableResult struct {
	Table     string                      `json:"table"`
	Report    *types.RecommendationReport `json:"report,omitempty"`
	ReportKey string                      `json:"report_key,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Code      string                      `json:"code,omitempty"`
}

// AdviseBatchResponse answers a request naming more than one table.
type AdviseBatchResponse struct {
	Results   []TableResult `json:"results"`
	Failed    int           `json:"failed"`
	RequestID string        `json:"request_id"`
}

// AdviseHandler handles POST /v1/advise. A single table is answered with the
// report itself; several tables with an AdviseBatchResponse.
type AdviseHandler struct {
	runner  Runner
	archive ReportArchive
}

// NewAdviseHandler creates an advise handler. archive may be nil.
func NewAdviseHandler(runner Runner, archive ReportArchive) *AdviseHandler {
	return &AdviseHandler{runner: runner, archive: archive}
}

// ServeHTTP handles the advise HTTP request.
func (h *AdviseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req AdviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	tables := req.tables()
	if len(tables) == 0 {
		writeError(w, http.StatusBadRequest, "table is required", requestID)
		return
	}

	if len(tables) == 1 {
		h.single(w, r, tables[0], requestID)
		return
	}

	resp := AdviseBatchResponse{RequestID: requestID}
	for _, res := range h.runner.RunMany(r.Context(), tables) {
		tr := TableResult{Table: res.Table, Report: res.Report}
		if res.Err != nil {
			tr.Error = res.Err.Error()
			tr.Code = adverrors.GetCode(res.Err)
			resp.Failed++
		} else {
			tr.ReportKey = h.save(r.Context(), res.Report, requestID)
		}
		resp.Results = append(resp.Results, tr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdviseHandler) single(w http.ResponseWriter, r *http.Request, table, requestID string) {
	rep, err := h.runner.Run(r.Context(), table)
	if err != nil {
		writeFailure(w, err, requestID)
		return
	}
	body, err := report.Encode(rep)
	if err != nil {
		writeFailure(w, err, requestID)
		return
	}
	if key := h.save(r.Context(), rep, requestID); key != "" {
		w.Header().Set("X-Report-Key", key)
	}
	writeRaw(w, http.StatusOK, body)
}

// save archives a report. A failed archive does not fail the request.
func (h *AdviseHandler) save(ctx context.Context, rep *types.RecommendationReport, requestID string) string {
	if h.archive == nil || rep == nil {
		return ""
	}
	key, err := h.archive.Save(ctx, rep)
	if err != nil {
		log.Printf("[WARN] http: archive report for %s (request %s): %v", rep.Table, requestID, err)
		return ""
	}
	return key
}

// statusFor maps an advisor error onto an HTTP status.
func statusFor(err error) int {
	switch adverrors.GetCode(err) {
	case adverrors.CodeTimedOut:
		return http.StatusGatewayTimeout
	case adverrors.CodeCancelled:
		return http.StatusServiceUnavailable
	case adverrors.CodeObjectNotFound:
		return http.StatusNotFound
	case adverrors.CodeInvalidConfig:
		return http.StatusBadRequest
	}
	switch adverrors.GetCategory(err) {
	case adverrors.ErrCategoryWorkload, adverrors.ErrCategoryStatistics, adverrors.ErrCategoryPolicy:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeFailure(w http.ResponseWriter, err error, requestID string) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:     err.Error(),
		Code:      adverrors.GetCode(err),
		RequestID: requestID,
	})
}
