// Package server is the ops HTTP surface of a worker: liveness, readiness,
// the voice catalog and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/example/go-lesson-audio/internal/voice"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// VoiceLister returns the voice catalog.
type VoiceLister interface {
	ListVoices() []voice.Voice
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	metrics      http.Handler
	checks       map[string]Check
	checkTimeout time.Duration
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		checks:       map[string]Check{},
		checkTimeout: 2 * time.Second,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

// WithCheck adds a named readiness check to /ready.
func WithCheck(name string, c Check) Option {
	return func(o *options) { o.checks[name] = c }
}

// WithCheckTimeout bounds each readiness check.
func WithCheckTimeout(d time.Duration) Option {
	return func(o *options) { o.checkTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	voices VoiceLister
	opts   options
	log    *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /ready, /voices
// and, when configured, /metrics.
func NewHandler(voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{voices: voices, opts: opts, log: opts.logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.HandleFunc("GET /voices", h.handleVoices)
	if opts.metrics != nil {
		mux.Handle("GET /metrics", opts.metrics)
	}
	return h.logRequests(mux)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.opts.checks))
	for name := range h.opts.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.checkTimeout)
		err := h.opts.checks[name](ctx)
		cancel()
		if err != nil {
			resp.Status = "unavailable"
			resp.Checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (h *handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	var voices []voice.Voice
	if h.voices != nil {
		voices = h.voices.ListVoices()
	}

	lang := strings.ToLower(r.URL.Query().Get("language"))
	provider := r.URL.Query().Get("provider")
	out := make([]voice.Voice, 0, len(voices))
	for _, v := range voices {
		if lang != "" && !strings.HasPrefix(strings.ToLower(v.LanguageCode), lang) {
			continue
		}
		if provider != "" && v.Provider != provider {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		h.log.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
}

func New(addr string, h http.Handler) *Server {
	return &Server{
		addr:            addr,
		handler:         h,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
