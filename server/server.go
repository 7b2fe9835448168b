// Package server exposes the capture pipeline over HTTP: a single
// download endpoint plus health and introspection routes, all JSON.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/situ-care/nubox-pdf-downloader/capture"
	"github.com/situ-care/nubox-pdf-downloader/capturelog"
)

// Capturer is the capture pipeline as the HTTP layer sees it.
type Capturer interface {
	Capture(ctx context.Context, targetURL string) (*capture.Outcome, error)
}

// Config configures the HTTP layer.
type Config struct {
	// Budget bounds one whole capture request.
	Budget time.Duration
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Budget <= 0 {
		c.Budget = 3 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server holds the route handlers. Store may be nil when the capture log
// is disabled.
type Server struct {
	capturer Capturer
	store    *capturelog.Store
	cfg      Config
	logger   *slog.Logger
}

// New creates a Server.
func New(capturer Capturer, store *capturelog.Store, cfg Config) *Server {
	cfg.defaults()
	return &Server{capturer: capturer, store: store, cfg: cfg, logger: cfg.Logger}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/download-pdf", s.handleDownload)
	r.Get("/captures", s.handleCaptures)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]any{
		"service": "nubox-pdf-downloader",
		"endpoints": map[string]string{
			"GET /download-pdf?url=": "capture the PDF produced by the page at url",
			"GET /health":            "liveness probe",
			"GET /captures?limit=":   "recent capture log entries (when enabled)",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if err := validateTargetURL(rawURL); err != nil {
		writeJSON(w, 400, map[string]string{
			"error":   "invalid request",
			"message": err.Error(),
		})
		return
	}

	// Deliberately not r.Context(): a client disconnect must not abort
	// in-flight browser work — the request runs to its budget regardless.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Budget)
	defer cancel()

	start := time.Now()
	out, err := s.capturer.Capture(ctx, rawURL)
	s.record(rawURL, out, err, time.Since(start))

	if err != nil {
		if errors.Is(err, capture.ErrNoPDF) {
			writeJSON(w, 500, map[string]string{
				"error":   "No PDF found",
				"message": err.Error(),
			})
			return
		}
		s.logger.Error("download: capture failed", "url", rawURL, "error", err)
		writeJSON(w, 500, map[string]string{
			"error":   "capture failed",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, 200, map[string]any{
		"success":     true,
		"pdf":         base64.StdEncoding.EncodeToString(out.Document.Bytes),
		"contentType": "application/pdf",
		"filename":    out.Filename,
	})
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, 503, map[string]string{"error": "capture log disabled"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, entries)
}

// record appends the attempt to the capture log when enabled.
func (s *Server) record(rawURL string, out *capture.Outcome, err error, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	e := capturelog.Entry{
		URL:        rawURL,
		DurationMs: elapsed.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if out != nil {
		e.CaptureID = out.CaptureID
		e.Strategy = out.Document.Strategy
		e.Filename = out.Filename
		e.RUT = out.Metadata.RUT
		e.IssueDate = out.Metadata.IssueDate
		e.Bytes = len(out.Document.Bytes)
	}
	// Off the response path: the write must never delay or fail the
	// request, and Record already swallows its own errors.
	go s.store.Record(context.Background(), e)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
