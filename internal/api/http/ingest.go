package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/arkilian/advisor/internal/source"
)

// maxIngestBatch bounds the records accepted by one request.
const maxIngestBatch = 10_000

// IngestRequest carries executed queries for a table's log.
type IngestRequest struct {
	Table   string               `json:"table"`
	Queries []source.QueryRecord `json:"queries"`
}

// IngestResponse represents the ingest response.
type IngestResponse struct {
	Table     string `json:"table"`
	Appended  int    `json:"appended"`
	RequestID string `json:"request_id"`
}

// IngestHandler handles POST /v1/queries requests.
type IngestHandler struct {
	ingester source.Ingester
}

// NewIngestHandler creates an ingest handler. A nil ingester answers 501.
func NewIngestHandler(ingester source.Ingester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

// ServeHTTP handles the ingest HTTP request.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	if h.ingester == nil {
		writeError(w, http.StatusNotImplemented, "the configured source does not accept queries", requestID)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	req.Table = strings.ToLower(strings.TrimSpace(req.Table))
	if req.Table == "" {
		writeError(w, http.StatusBadRequest, "table is required", requestID)
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries must not be empty", requestID)
		return
	}
	if len(req.Queries) > maxIngestBatch {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("at most %d queries per request", maxIngestBatch), requestID)
		return
	}
	for i, q := range req.Queries {
		if strings.TrimSpace(q.Query) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("queries[%d]: query is required", i), requestID)
			return
		}
	}

	n, err := h.ingester.AppendQueries(r.Context(), req.Table, req.Queries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to append queries: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{Table: req.Table, Appended: n, RequestID: requestID})
}
