// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles the service graph and owns the server lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitabo/mitabo/internal/api"
	"github.com/mitabo/mitabo/internal/asset"
	"github.com/mitabo/mitabo/internal/blob"
	"github.com/mitabo/mitabo/internal/cache"
	"github.com/mitabo/mitabo/internal/config"
	"github.com/mitabo/mitabo/internal/health"
	"github.com/mitabo/mitabo/internal/hls"
	"github.com/mitabo/mitabo/internal/ingest"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/media/capability"
	"github.com/mitabo/mitabo/internal/media/ffmpeg"
	"github.com/mitabo/mitabo/internal/media/ffprobe"
	"github.com/mitabo/mitabo/internal/persistence/sqlite"
	"github.com/mitabo/mitabo/internal/telemetry"
	"github.com/rs/zerolog"
)

const (
	mediaURLPrefix       = "/media"
	cacheCleanupInterval = time.Minute
)

var errEngineMissing = errors.New("engine binary not found")

// Runtime is the assembled service: the HTTP handler plus the resources
// that must be released on shutdown.
type Runtime struct {
	Handler http.Handler
	Health  *health.Manager

	hooks  []namedHook
	logger zerolog.Logger
}

// Bootstrap builds every component from cfg. On error, anything already
// opened is closed again.
func Bootstrap(ctx context.Context, cfg config.AppConfig, version string) (_ *Runtime, err error) {
	rt := &Runtime{logger: log.WithComponent("bootstrap")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version,
		Environment:    config.ParseString(config.EnvPrefix+"ENVIRONMENT", "production"),
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.addHook("telemetry", tp.Shutdown)
	tracingService := ""
	if tp.Enabled() {
		tracingService = cfg.LogService
		rt.logger.Info().
			Str("exporter", cfg.Telemetry.Exporter).
			Str("endpoint", cfg.Telemetry.Endpoint).
			Float64("sampling_rate", cfg.Telemetry.SamplingRate).
			Msg("Telemetry initialized")
	}

	if err := verifyDatabase(cfg.Database.Path); err != nil {
		return nil, err
	}
	assets, err := asset.OpenSQLite(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	rt.addHook("assets", func(context.Context) error { return assets.Close() })

	blobs, mediaDir, err := openBlobs(ctx, cfg)
	if err != nil {
		return nil, err
	}

	listings, redisClient := openCache(ctx, cfg, rt.logger)
	rt.addHook("cache", func(context.Context) error { return listings.Close() })

	probe := capability.NewProbe(cfg.FFmpeg.Bin, capability.WithTTL(cfg.FFmpeg.ProbeCacheTTL))
	executor := ffmpeg.NewExecutor(cfg.FFmpeg.Bin, cfg.FFmpeg.StallTimeout)
	executor.KillGrace = cfg.FFmpeg.KillGrace
	ingester := ingest.NewService(
		ingest.Config{
			Timeout:       cfg.FFmpeg.Timeout,
			MaxConcurrent: cfg.Ingest.MaxConcurrent,
			FrameRate:     cfg.FFmpeg.FrameRate,
		},
		probe,
		hls.NewPackager(cfg.HLS.Root, executor),
		ingest.WithProber(ffprobe.NewProber(cfg.FFmpeg.FFprobeBin)),
	)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewFuncChecker("database", assets.Ping))
	hm.RegisterChecker(health.NewDirChecker("hls_root", cfg.HLS.Root))
	if mediaDir != "" {
		hm.RegisterChecker(health.NewDirChecker("uploads", mediaDir))
	}
	hm.RegisterChecker(health.NewOptionalChecker("ffmpeg", func(ctx context.Context) error {
		if !probe.Available(ctx) {
			return fmt.Errorf("%w: %s", errEngineMissing, cfg.FFmpeg.Bin)
		}
		return nil
	}))
	if redisClient != nil {
		hm.RegisterChecker(health.NewOptionalChecker("redis", redisClient.HealthCheck))
	}
	rt.Health = hm

	srv := api.New(api.Config{
		MaxUploadBytes:      cfg.Upload.MaxBytes,
		UploadRatePerMinute: cfg.Upload.RateLimitPerMinute,
		CacheTTL:            cfg.Cache.TTL,
		TracingService:      tracingService,
	}, api.Deps{
		Assets:   assets,
		Blobs:    blobs,
		Ingest:   ingester,
		Cache:    listings,
		HLSRoot:  cfg.HLS.Root,
		MediaDir: mediaDir,
		Health:   hm,
	})
	rt.Handler = srv.Handler()

	rt.logger.Info().
		Str("storage", blobs.Backend()).
		Str("database", cfg.Database.Path).
		Str("hls_root", cfg.HLS.Root).
		Bool("redis", redisClient != nil).
		Msg("service graph assembled")
	return rt, nil
}

// verifyDatabase refuses to start on a corrupt database. A missing file is
// created by the store.
func verifyDatabase(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	problems, err := sqlite.VerifyIntegrity(path, "quick")
	if err != nil {
		return fmt.Errorf("verify database: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("database %s failed integrity check: %s", path, strings.Join(problems, "; "))
	}
	return nil
}

// openBlobs returns the originals store and, for the local backend, the
// directory served under /media.
func openBlobs(ctx context.Context, cfg config.AppConfig) (blob.Store, string, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:        cfg.Storage.S3Bucket,
			Region:        cfg.Storage.S3Region,
			Endpoint:      cfg.Storage.S3Endpoint,
			PublicBaseURL: cfg.Storage.S3PublicBaseURL,
			TempDir:       filepath.Join(cfg.DataDir, "tmp"),
		})
		if err != nil {
			return nil, "", fmt.Errorf("open s3 storage: %w", err)
		}
		return s3, "", nil
	default:
		local, err := blob.NewLocal(cfg.Storage.LocalDir, mediaURLPrefix)
		if err != nil {
			return nil, "", fmt.Errorf("open local storage: %w", err)
		}
		return local, local.Dir(), nil
	}
}

// openCache prefers Redis when configured and falls back to memory when it
// is unreachable.
func openCache(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (cache.Cache, *cache.Redis) {
	if cfg.Cache.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, log.WithComponent("cache"))
		if err == nil {
			return r, r
		}
		logger.Warn().Err(err).
			Str(log.FieldEvent, "cache.redis_unavailable").
			Str("addr", cfg.Cache.RedisAddr).
			Msg("redis unreachable, using in-memory listing cache")
	}
	return cache.NewMemory(cacheCleanupInterval), nil
}

func (r *Runtime) addHook(name string, hook ShutdownHook) {
	r.hooks = append(r.hooks, namedHook{name: name, hook: hook})
}

// RegisterShutdownHooks hands resource cleanup to m.
func (r *Runtime) RegisterShutdownHooks(m Manager) {
	for _, h := range r.hooks {
		m.RegisterShutdownHook(h.name, h.hook)
	}
	r.hooks = nil
}

// Close releases resources not handed to a Manager, newest first.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.hooks) - 1; i >= 0; i-- {
		if err := r.hooks[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.hooks[i].name, err))
		}
	}
	r.hooks = nil
	return errors.Join(errs...)
}
