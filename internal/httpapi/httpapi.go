// Package httpapi wires the external HTTP surface (webhook, task,
// admin, chat, and health endpoints) onto a net/http.ServeMux,
// delegating all business logic to internal/ingest, internal/indexer,
// and internal/rag.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sourcelens/codekb/internal/indexer"
	"github.com/sourcelens/codekb/internal/ingest"
	"github.com/sourcelens/codekb/internal/observability"
	"github.com/sourcelens/codekb/internal/rag"
	"github.com/sourcelens/codekb/internal/store"
)

// Server holds the dependencies every handler needs. FetchText retrieves
// a URL's text content for /admin/ingest-url; it defaults to
// ingest.NewFetchURLClient().Fetch when left nil by the caller. ErrorHandler
// is optional; when set, every handler's 500 path reports through it
// (logging, metrics, Sentry, span status) in addition to the uniform
// {"detail": "Internal server error"} body the caller sees.
type Server struct {
	Indexer       *indexer.Indexer
	Dispatcher    *ingest.Dispatcher
	Orchestrator  *rag.Orchestrator
	Store         store.Store
	Logger        *slog.Logger
	ErrorHandler  *observability.ErrorHandler
	WebhookSecret []byte
	FetchText     func(ctx context.Context, url string) (string, error)
}

// reportInternalError logs err and, if an ErrorHandler is configured, routes
// it through Sentry/metrics/tracing before the caller writes the uniform
// 500 envelope.
func (s *Server) reportInternalError(r *http.Request, route, errType string, err error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(errType, "route", route, "error", err)
	if s.ErrorHandler != nil {
		s.ErrorHandler.HandleError(r.Context(), err, observability.ErrorContext{
			Method:    r.Method,
			Route:     route,
			ErrorType: errType,
			ErrorCode: http.StatusInternalServerError,
		})
	}
}

// Mux builds the full routing table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/github", s.handleWebhookGitHub)
	mux.HandleFunc("POST /tasks/index-file", s.handleTaskIndexFile)
	mux.HandleFunc("POST /tasks/delete-file", s.handleTaskDeleteFile)
	mux.HandleFunc("POST /admin/sync-repo", s.handleAdminSyncRepo)
	mux.HandleFunc("POST /admin/backfill", s.handleAdminBackfill)
	mux.HandleFunc("POST /admin/ingest-url", s.handleAdminIngestURL)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// Handler wraps Mux with panic recovery, so an unhandled panic in any
// handler still produces the uniform 500 envelope instead of tearing
// down the connection.
func (s *Server) Handler() http.Handler {
	mux := s.Mux()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.reportInternalError(r, r.URL.Path, "panic", fmt.Errorf("panic: %v", rec))
				writeDetail(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		mux.ServeHTTP(w, r)
	})
}

// writeJSON marshals v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes {"detail": msg} at status, the error envelope used by
// task endpoints and the global unhandled-error fallback.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// decodeJSON decodes the request body into v, returning false (and having
// already written a 422) on malformed JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed request body")
		return false
	}
	return true
}
