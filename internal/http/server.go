// Package http is the JSON presentation layer over the hierarchy store
// and the ledger engine. It validates and decodes requests, maps the
// domain error taxonomy to status codes, and never reaches around the
// engine to touch transfer rows.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fondo/internal/ledger"
	"fondo/internal/storage"
)

type Server struct {
	http.Server
	store  *storage.Repository
	ledger *ledger.Service
}

func NewServer(addr string, store *storage.Repository, svc *ledger.Service) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:  store,
		ledger: svc,
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/api/persons", s.withTracing(s.handlePersons))
	mux.HandleFunc("/api/persons/rename", s.withTracing(s.handleRenamePerson))
	mux.HandleFunc("/api/persons/delete", s.withTracing(s.handleDeletePerson))

	mux.HandleFunc("/api/projects", s.withTracing(s.handleProjects))
	mux.HandleFunc("/api/projects/rename", s.withTracing(s.handleRenameProject))
	mux.HandleFunc("/api/projects/delete", s.withTracing(s.handleDeleteProject))
	mux.HandleFunc("/api/projects/reorder", s.withTracing(s.handleReorderProjects))

	mux.HandleFunc("/api/subprojects", s.withTracing(s.handleSubProjects))
	mux.HandleFunc("/api/subprojects/rename", s.withTracing(s.handleRenameSubProject))
	mux.HandleFunc("/api/subprojects/delete", s.withTracing(s.handleDeleteSubProject))
	mux.HandleFunc("/api/subprojects/reorder", s.withTracing(s.handleReorderSubProjects))

	mux.HandleFunc("/api/transfers", s.withTracing(s.handleTransfers))
	mux.HandleFunc("/api/transfers/update", s.withTracing(s.handleUpdateTransfer))
	mux.HandleFunc("/api/transfers/delete", s.withTracing(s.handleDeleteTransfer))

	mux.HandleFunc("/api/balance", s.withTracing(s.handleBalance))
	mux.HandleFunc("/api/summary", s.withTracing(s.handleSummary))

	return s
}

// withTracing adds a request id and start/completion logging.
func (s *Server) withTracing(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds())
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
