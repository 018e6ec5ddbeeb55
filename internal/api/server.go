package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pose.report/internal/db"
	"github.com/banshee-data/pose.report/internal/pipeline"
	"github.com/banshee-data/pose.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Runner launches prediction runs in the background. The pipeline package
// provides the implementation; the seam keeps handlers testable without a
// dataset on disk.
type Runner interface {
	Start(ctx context.Context, overrides []byte) error
}

// Server handles the HTTP interface over the results database: run
// inspection, report rendering, and run triggering.
type Server struct {
	address string
	db      *db.DB
	manager *pipeline.RunManager
	runner  Runner
	server  *http.Server
}

// Config contains configuration options for the API server. Manager and
// Runner are optional; without them the trigger endpoints report the
// feature as unconfigured.
type Config struct {
	Address string
	DB      *db.DB
	Manager *pipeline.RunManager
	Runner  Runner
}

// NewServer creates an API server with the provided configuration.
func NewServer(config Config) *Server {
	s := &Server{
		address: config.Address,
		db:      config.DB,
		manager: config.Manager,
		runner:  config.Runner,
	}

	s.server = &http.Server{
		Addr:    s.address,
		Handler: LoggingMiddleware(s.setupRoutes()),
	}

	return s
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers. Exact patterns such
// as /api/runs/start take precedence over the /api/runs/ dispatcher.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/runs", s.handleListRuns)
	mux.HandleFunc("/api/runs/start", s.handleRunStart)
	mux.HandleFunc("/api/runs/active", s.handleRunActive)
	mux.HandleFunc("/api/runs/", s.handleRunAPI)
	mux.HandleFunc("/api/sweeps", s.handleListSweeps)
	mux.HandleFunc("/api/sweeps/report", s.handleSweepReport)

	if s.db != nil {
		s.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "pose-report", "version": "%s", "timestamp": "%s"}`,
		version.String(), time.Now().UTC().Format(time.RFC3339))
}

// Close shuts down the API server.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
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
