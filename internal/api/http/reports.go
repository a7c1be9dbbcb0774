package http

import (
	"net/http"
	"strings"

	"github.com/arkilian/advisor/internal/report"
)

// ReportsHandler handles GET /v1/reports/{table}, returning the latest
// archived report. ?format=text renders it as tables.
type ReportsHandler struct {
	archive ReportArchive
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(archive ReportArchive) *ReportsHandler {
	return &ReportsHandler{archive: archive}
}

// ServeHTTP handles the reports HTTP request.
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	table := strings.ToLower(strings.TrimSpace(r.PathValue("table")))
	if table == "" {
		writeError(w, http.StatusBadRequest, "table is required", requestID)
		return
	}

	rep, err := h.archive.Latest(r.Context(), table)
	if err != nil {
		writeFailure(w, err, requestID)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = report.Render(w, rep)
		return
	}
	body, err := report.Encode(rep)
	if err != nil {
		writeFailure(w, err, requestID)
		return
	}
	writeRaw(w, http.StatusOK, body)
}
