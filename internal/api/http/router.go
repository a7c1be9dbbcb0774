package http

import (
	"net/http"

	"github.com/arkilian/advisor/internal/source"
)

// Handlers holds the dependencies of the HTTP API. Only Runner is required.
type Handlers struct {
	Runner   Runner
	Archive  ReportArchive
	Usage    UsageSource
	Ingester source.Ingester
	// Wrap is applied to every route inside the default middleware.
	Wrap func(http.Handler) http.Handler
}

// NewRouter builds the API mux:
//
//	POST /v1/advise
//	GET  /v1/reports/{table}   (when an archive is configured)
//	GET  /v1/stats             (when usage is tracked)
//	POST /v1/queries
//	GET  /health
func NewRouter(h Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/advise", NewAdviseHandler(h.Runner, h.Archive))
	if h.Archive != nil {
		mux.Handle("/v1/reports/{table}", NewReportsHandler(h.Archive))
	}
	if h.Usage != nil {
		mux.Handle("/v1/stats", NewStatsHandler(h.Usage))
	}
	mux.Handle("/v1/queries", NewIngestHandler(h.Ingester))
	mux.HandleFunc("/health", healthHandler)

	var handler http.Handler = mux
	if h.Wrap != nil {
		handler = h.Wrap(handler)
	}
	return DefaultMiddleware()(handler)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
