package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/scan2sheets/internal/app"
	"github.com/MeKo-Tech/scan2sheets/internal/config"
	"github.com/MeKo-Tech/scan2sheets/internal/events"
	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app        *app.App
	events     *events.Broker
	logger     *slog.Logger
	corsOrigin string
	maxUpload  int64
	timeout    time.Duration
	limiter    *RateLimiter
	version    string
}

// Config holds server configuration.
type Config struct {
	CORSOrigin  string
	MaxUploadMB int
	TimeoutSec  int
	RateLimit   RateLimitConfig
	Version     string
}

// RateLimitConfig limits analysis requests per client.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
}

// ConfigFrom maps the server section of the application config.
func ConfigFrom(sc config.ServerConfig, version string) Config {
	return Config{
		CORSOrigin:  sc.CORSOrigin,
		MaxUploadMB: sc.MaxUploadMB,
		TimeoutSec:  sc.TimeoutSec,
		RateLimit: RateLimitConfig{
			Enabled:           sc.RateLimitEnabled,
			RequestsPerMinute: sc.RequestsPerMinute,
			RequestsPerHour:   sc.RequestsPerHour,
		},
		Version: version,
	}
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	Clients int    `json:"event_clients"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AnalyzeResult describes one recognized value.
type AnalyzeResult struct {
	SourceType recognize.SourceType `json:"sourceType"`
	Value      string               `json:"value"`
	Format     string               `json:"format,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	Region     geometry.Rect        `json:"region"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	// Preview is the preprocessed image as a base64 PNG, when requested.
	Preview string `json:"preview,omitempty"`
}

type AnalyzeResponse struct {
	Success bool          `json:"success"`
	Result  AnalyzeResult `json:"result"`
}

// RecordRequest is the body of /records/send and /records/pending.
type RecordRequest struct {
	Value      string `json:"value"`
	SourceType string `json:"sourceType"`
	Notes      string `json:"notes"`
}

type EntryResponse struct {
	Success bool         `json:"success"`
	Entry   outbox.Entry `json:"entry"`
	Error   string       `json:"error,omitempty"`
}

type HistoryResponse struct {
	Entries []outbox.Entry `json:"entries"`
	Count   int            `json:"count"`
	Pending int            `json:"pending"`
}

type RetryAllResponse struct {
	Success bool                `json:"success"`
	Summary outbox.RetrySummary `json:"summary"`
	Entries []outbox.Entry      `json:"entries"`
}

// NewServer creates a server over a. broker may be nil, which disables
// GET /events.
func NewServer(a *app.App, broker *events.Broker, cfg Config) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 60
	}
	s := &Server{
		app:        a,
		events:     broker,
		logger:     a.Logger,
		corsOrigin: cfg.CORSOrigin,
		maxUpload:  int64(cfg.MaxUploadMB) << 20,
		timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		version:    cfg.Version,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware, s.metricsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.With(s.rateLimitMiddleware).Post("/analyze", s.analyzeHandler)

	r.Post("/records/send", s.sendRecordHandler)
	r.Post("/records/pending", s.pendingRecordHandler)

	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.listHistoryHandler)
		r.Delete("/", s.clearHistoryHandler)
		r.Post("/retry-all", s.retryAllHandler)
		r.Get("/{id}", s.getEntryHandler)
		r.Post("/{id}/retry", s.retryEntryHandler)
		r.Delete("/{id}", s.deleteEntryHandler)
	})

	r.Get("/settings", s.getSettingsHandler)
	r.Put("/settings", s.saveSettingsHandler)
	r.Delete("/settings", s.clearSettingsHandler)

	if s.events != nil {
		r.Get("/events", s.events.ServeHTTP)
	}
	r.Get("/ws", s.roiWebSocketHandler)

	return r
}
