package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/vapviz/vap-server/internal/config"
	"github.com/vapviz/vap-server/internal/metrics"
	"github.com/vapviz/vap-server/internal/prepare"
	"github.com/vapviz/vap-server/internal/series"
	"github.com/vapviz/vap-server/internal/store"
)

const (
	serviceName    = "vap-server"
	serviceVersion = "1.0.0"

	requestIDHeader = "X-Request-Id"
)

type contextKey int

const requestIDKey contextKey = iota

// HTTPServer serves session recordings and prepared model outputs
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	store    *store.Store
	loader   *series.Loader
	pipeline *prepare.Pipeline
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, st *store.Store,
	loader *series.Loader, pipeline *prepare.Pipeline, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		store:     st,
		loader:    loader,
		pipeline:  pipeline,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Address, fmt.Sprint(cfg.HTTP.Port)),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Session endpoints consumed by the visualization client
	mux.HandleFunc("/files", h.withMetrics("/files", h.handleFiles))
	mux.HandleFunc("/audio", h.withMetrics("/audio", h.handleAudio))
	mux.HandleFunc("/output", h.withMetrics("/output", h.handleOutput))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", h.metrics.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, for use without a listener
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Addr returns the configured listen address
func (h *HTTPServer) Addr() string {
	return h.server.Addr
}

// withMetrics wraps an HTTP handler with request ids and metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		requestID := xid.New().String()
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime)
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration.Seconds())

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		h.logger.Debug("HTTP request handled",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.statusCode),
			slog.Duration("duration", duration),
		)
	}
}

// requestLogger returns the server logger annotated with the request id
func (h *HTTPServer) requestLogger(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ListenAndServe serves until Stop is called. A graceful stop returns nil.
func (h *HTTPServer) ListenAndServe() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.requestLogger(r).Warn("Failed to write response", slog.String("error", err.Error()))
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	storageStatus := "ok"
	code := http.StatusOK
	if _, err := h.store.Sessions(); err != nil {
		status, storageStatus = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"storage": map[string]interface{}{
				"root":   h.store.Root(),
				"status": storageStatus,
			},
			"pipeline": map[string]interface{}{
				"smoothing": h.pipeline.Smoothing(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The storage root is not exposed
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"address":       h.config.HTTP.Address,
			"port":          h.config.HTTP.Port,
			"read_timeout":  h.config.HTTP.ReadTimeout,
			"write_timeout": h.config.HTTP.WriteTimeout,
		},
		"pipeline": map[string]interface{}{
			"window_size":      h.config.Pipeline.WindowSize,
			"frame_hz":         h.config.Pipeline.FrameHz,
			"vocabulary_size":  h.config.Pipeline.VocabularySize,
			"default_topk":     h.config.Pipeline.DefaultTopK,
			"vad_threshold":    h.config.Pipeline.VADThreshold,
			"malformed_policy": h.config.Pipeline.MalformedPolicy,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
		},
	}

	h.writeJSON(w, r, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "VAP Telemetry Server",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                                 "API documentation",
			"GET /files":                            "List session identifiers",
			"GET /files?detail=1":                   "List sessions with recording details",
			"GET /audio?filename={session}":         "Session recording",
			"GET /output?filename={session}-topk=k": "Prepared model output payload",
			"GET /health":                           "Service health check",
			"GET /config":                           "Get service configuration",
			"GET /metrics":                          "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, r, apiDoc)
}
