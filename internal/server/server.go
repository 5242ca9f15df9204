// Package server provides the HTTP server for the repcount service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Session   *app.Session
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server for the repcount service.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.instrument(s.handleHealth))

	if sess := s.config.Session; sess != nil {
		// Exercise catalog
		exercises := api.NewExerciseHandler(sess)
		s.mux.Handle("/api/exercises", s.instrument(exercises.ServeHTTP))
		s.mux.Handle("/api/exercises/", s.instrument(exercises.ServeHTTP))

		// Session control and frame ingestion
		session := api.NewSessionHandler(sess)
		s.mux.HandleFunc("/api/session", s.instrument(session.Snapshot))
		s.mux.HandleFunc("/api/session/reset", s.instrument(session.Reset))
		s.mux.HandleFunc("/api/session/exercise", s.instrument(session.SelectExercise))
		s.mux.HandleFunc("/api/frames", s.instrument(session.Frames))

		// The upgrade hijacks the connection, so it is not instrumented
		s.mux.Handle("/api/events", NewEventsHandler(sess))
	}

	if s.config.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	// Static files last: "/" matches everything else
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts requests by method and status code.
func (s *Server) instrument(next http.HandlerFunc) http.HandlerFunc {
	if s.config.Session == nil || s.config.Session.Telemetry() == nil {
		return next
	}
	requests := s.config.Session.Telemetry().CounterRequests

	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.Session != nil {
		response["exercise"] = s.config.Session.Snapshot().Exercise
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("http server stopped")
	return nil
}
