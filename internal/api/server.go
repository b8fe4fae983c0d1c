// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the video upload, listing and playback HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mitabo/mitabo/internal/api/middleware"
	"github.com/mitabo/mitabo/internal/asset"
	"github.com/mitabo/mitabo/internal/blob"
	"github.com/mitabo/mitabo/internal/cache"
	"github.com/mitabo/mitabo/internal/health"
	"github.com/mitabo/mitabo/internal/ingest"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxUploadBytes bounds one multipart upload.
	DefaultMaxUploadBytes = 2 << 30
	// DefaultCacheTTL bounds listing staleness.
	DefaultCacheTTL = 30 * time.Second

	multipartMemory = 32 << 20
)

// Ingester packages an uploaded original.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) ingest.Result
}

// Config tunes the HTTP surface.
type Config struct {
	MaxUploadBytes      int64
	UploadRatePerMinute int
	CacheTTL            time.Duration
	// TracingService names HTTP spans; empty disables tracing.
	TracingService string
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Assets asset.Store
	Blobs  blob.Store
	Ingest Ingester
	// Cache holds encoded listing pages; nil disables caching.
	Cache cache.Cache
	// HLSRoot is the packaging root served under /hls.
	HLSRoot string
	// MediaDir is served under /media when non-empty (local blob backend).
	MediaDir string
	Health   *health.Manager
}

// Server owns the router.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/videos", func(r chi.Router) {
		r.With(middleware.UploadRateLimit(s.cfg.UploadRatePerMinute)).Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/views", s.handleView)
		r.Delete("/{id}", s.handleDelete)
	})

	r.Handle("/hls/*", http.StripPrefix("/hls", SecureFileServer(HLSRoot(s.deps.HLSRoot))))
	if s.deps.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media", SecureFileServer(MediaRoot(s.deps.MediaDir))))
	}
	return r
}
