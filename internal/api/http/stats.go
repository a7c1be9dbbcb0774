package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/arkilian/advisor/internal/observability"
)

const defaultStatsLimit = 20

// UsageSource exposes column usage.
type UsageSource interface {
	GetTopColumns(table string, n int) []observability.ColumnUsage
	ShapeCount(table string) int
}

// StatsResponse lists the most filtered columns.
type StatsResponse struct {
	Table   string                      `json:"table,omitempty"`
	Shapes  int                         `json:"shapes"`
	Columns []observability.ColumnUsage `json:"columns"`
}

// StatsHandler handles GET /v1/stats?table=&limit=.
type StatsHandler struct {
	usage UsageSource
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(usage UsageSource) *StatsHandler {
	return &StatsHandler{usage: usage}
}

// ServeHTTP handles the stats HTTP request.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	limit := defaultStatsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", requestID)
			return
		}
		limit = n
	}
	table := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("table")))

	writeJSON(w, http.StatusOK, StatsResponse{
		Table:   table,
		Shapes:  h.usage.ShapeCount(table),
		Columns: h.usage.GetTopColumns(table, limit),
	})
}
