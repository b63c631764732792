// Package api serves the session REST interface: sessions, their exported
// gantry parameters, batch run control and sampled pose previews.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/carm/internal/db"
	"github.com/banshee-data/carm/internal/httputil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SessionPrefix is the route prefix for all session endpoints.
const SessionPrefix = "/api/v1/session/"

// MaxSamples caps the sample count the preview endpoints will draw.
const MaxSamples = 100000

type Server struct {
	db   *db.DB
	seed uint64
}

// NewServer serves sessions stored in database. seed is the default seed
// for sample previews.
func NewServer(database *db.DB, seed uint64) *Server {
	return &Server{
		db:   database,
		seed: seed,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns a mux with the session routes registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register adds the session routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc(SessionPrefix, s.routeSession)
}

// routeSession dispatches /api/v1/session/[{id}/[action/...]].
func (s *Server) routeSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, SessionPrefix), "/")
	if rest == "" {
		s.handleSessions(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		httputil.BadRequest(w, "invalid session id")
		return
	}
	sessionID := id.String()

	switch {
	case len(parts) == 1:
		s.handleSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "parameters":
		s.handleParameters(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "initiate-batch-run":
		s.handleInitiateBatchRun(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "cancel-batch-run":
		s.handleCancelBatchRun(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "samples":
		s.handleSamples(w, r, sessionID)
	case len(parts) == 3 && parts[1] == "samples" && parts[2] == "chart":
		s.handleSamplesChart(w, r, sessionID)
	case len(parts) == 3 && parts[1] == "samples" && strings.HasSuffix(parts[2], ".png"):
		s.handleSamplesPNG(w, r, sessionID, strings.TrimSuffix(parts[2], ".png"))
	default:
		httputil.NotFound(w, "no such endpoint")
	}
}

// writeStoreError maps store sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrSessionNotFound):
		httputil.NotFound(w, "session not found")
	case errors.Is(err, db.ErrParametersNotFound):
		httputil.NotFound(w, "session parameters not found")
	case errors.Is(err, db.ErrParametersExist):
		httputil.Conflict(w, "session parameters already set")
	case errors.Is(err, db.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, db.ErrParametersMissing):
		httputil.BadRequest(w, "session parameters must be set before starting a batch run")
	default:
		log.Printf("session store error: %v", err)
		httputil.InternalServerError(w, "internal error")
	}
}
