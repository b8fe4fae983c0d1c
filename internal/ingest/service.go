// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest decides, per upload, whether to package the original into
// HLS and falls back to direct playback whenever packaging does not succeed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitabo/mitabo/internal/hls"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/media/capability"
	"github.com/mitabo/mitabo/internal/media/ffmpeg"
	"github.com/mitabo/mitabo/internal/media/ffprobe"
	"github.com/mitabo/mitabo/internal/metrics"
	"github.com/mitabo/mitabo/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// FallbackNotice is shown to the uploader when packaging did not succeed.
const FallbackNotice = "adaptive packaging failed, direct playback will be used"

// DefaultTimeout bounds one packaging job.
const DefaultTimeout = 30 * time.Minute

// Packager runs one packaging job below its root.
type Packager interface {
	Package(ctx context.Context, job hls.Job) (string, error)
	Root() string
}

// StreamProber inspects the input before packaging.
type StreamProber interface {
	Probe(ctx context.Context, path string) (*ffprobe.StreamInfo, error)
}

// Config tunes the service. Zero values select defaults.
type Config struct {
	Timeout        time.Duration
	MaxConcurrent  int
	FrameRate      float64
	SegmentSeconds int
	Renditions     []hls.Rendition
}

// Request is one uploaded original.
type Request struct {
	AssetID    string
	SourcePath string
	Package    bool
}

// Result is what the upload handler records on the asset.
type Result struct {
	ManifestRef string // root-relative master playlist, empty on fallback
	Notice      string // advisory for the uploader, empty unless packaging failed
	State       State
	Transitions []State
	Probe       *ffprobe.StreamInfo
	// Err is the packaging failure, for logging only.
	Err error
}

// Packaged reports whether an HLS asset is available.
func (r Result) Packaged() bool { return r.ManifestRef != "" }

// Service is the ingestion orchestrator.
type Service struct {
	cfg      Config
	checker  capability.Checker
	packager Packager
	prober   StreamProber
	sem      *semaphore.Weighted
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithProber enables best-effort stream probing before packaging.
func WithProber(p StreamProber) Option {
	return func(s *Service) { s.prober = p }
}

// NewService builds the orchestrator.
func NewService(cfg Config, checker capability.Checker, packager Packager, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = hls.DefaultFrameRate
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = hls.DefaultSegmentSeconds
	}
	if len(cfg.Renditions) == 0 {
		cfg.Renditions = hls.DefaultLadder()
	}

	s := &Service{
		cfg:      cfg,
		checker:  checker,
		packager: packager,
		tracer:   telemetry.Tracer("mitabo/ingest"),
		logger:   log.WithComponent("ingest"),
	}
	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest runs at most one packaging attempt for req, synchronously. It never
// fails: any packaging error ends in the direct-playback fallback.
func (s *Service) Ingest(ctx context.Context, req Request) Result {
	ctx, span := s.tracer.Start(ctx, "ingest.Ingest",
		trace.WithAttributes(telemetry.IngestAttributes(req.AssetID, req.Package)...))
	defer span.End()

	jobID := uuid.NewString()
	ctx = log.ContextWithJobID(ctx, jobID)
	logger := log.WithContext(ctx, s.logger).With().Str(log.FieldAssetID, req.AssetID).Logger()

	m := newMachine()
	res := s.run(ctx, req, m, logger)

	m.to(StateFinalized)
	res.State = StateFinalized
	res.Transitions = m.path()

	span.SetAttributes(attribute.String(telemetry.IngestStateKey, string(m.visited[len(m.visited)-2])))
	if res.Notice != "" {
		span.SetAttributes(attribute.String(telemetry.IngestNoticeKey, res.Notice))
	}
	logger.Info().
		Str(log.FieldEvent, "ingest.finalized").
		Str("manifest_ref", res.ManifestRef).
		Bool("fallback", res.ManifestRef == "").
		Interface("transitions", res.Transitions).
		Msg("ingestion finalized")
	return res
}

func (s *Service) run(ctx context.Context, req Request, m *machine, logger zerolog.Logger) Result {
	if !req.Package {
		return s.skip(m, logger, "not_requested")
	}
	if s.checker == nil || !s.checker.Available(ctx) {
		return s.skip(m, logger, "engine_unavailable")
	}

	s.transition(m, logger, StatePackaging)
	metrics.PackagingStarted()
	defer metrics.PackagingFinished()
	start := time.Now()

	res, err := s.packageAsset(ctx, req, logger)
	if err != nil {
		reason := failureReason(err)
		metrics.IncIngest("failed")
		metrics.IncPackagingFailure(reason)
		metrics.ObservePackaging("failed", time.Since(start))

		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(telemetry.ErrorAttributes(reason)...)

		evt := logger.Error().
			Str(log.FieldEvent, "ingest.packaging_failed").
			Str("reason", reason).
			Err(err)
		var ee *hls.EngineError
		if errors.As(err, &ee) {
			evt = evt.Int("exit_code", ee.ExitCode).Str("diagnostic", ee.Diagnostic)
		}
		evt.Msg("packaging failed, falling back to direct playback")

		s.transition(m, logger, StatePackagingFailed)
		res.ManifestRef = ""
		res.Notice = FallbackNotice
		res.Err = err
		return res
	}

	metrics.IncIngest("packaged")
	metrics.ObservePackaging("packaged", time.Since(start))
	s.transition(m, logger, StatePackaged)
	return res
}

func (s *Service) skip(m *machine, logger zerolog.Logger, reason string) Result {
	metrics.IncIngest("skipped")
	logger.Info().
		Str(log.FieldEvent, "ingest.skipped").
		Str("reason", reason).
		Msg("packaging skipped, direct playback")
	s.transition(m, logger, StateSkipped)
	return Result{}
}

// packageAsset allocates a fresh output directory, probes, packages and
// repairs the master playlist.
func (s *Service) packageAsset(ctx context.Context, req Request, logger zerolog.Logger) (Result, error) {
	var res Result

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return res, fmt.Errorf("wait for packaging slot: %w", err)
		}
		defer s.sem.Release(1)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	outputDir := filepath.Join(s.packager.Root(), hls.NewAssetDirName(req.AssetID))
	job := hls.NewJob(req.SourcePath, outputDir)
	job.Renditions = s.cfg.Renditions
	job.SegmentSeconds = s.cfg.SegmentSeconds
	job.FrameRate = s.cfg.FrameRate

	if s.prober != nil {
		info, err := s.prober.Probe(ctx, req.SourcePath)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "ingest.probe_failed").Msg("stream probe failed, using declared frame rate")
		} else {
			res.Probe = info
			if info.Video.FPS > 0 {
				job.FrameRate = info.Video.FPS
			}
			job.NoAudio = info.HasVideo() && !info.HasAudio()
			trace.SpanFromContext(ctx).SetAttributes(
				telemetry.SourceAttributes(info.Video.Width, info.Video.Height, info.Duration, info.Container)...)
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.PackagingAttributes(outputDir, len(job.Renditions), job.FrameRate, job.SegmentSeconds)...)

	ref, err := s.packager.Package(ctx, job)
	if err != nil {
		return res, err
	}

	repaired, err := hls.EnsureMasterPlaylist(outputDir, job.Renditions)
	if err != nil {
		return res, fmt.Errorf("ensure master playlist: %w", err)
	}
	if repaired {
		metrics.IncManifestRepair()
		logger.Info().
			Str(log.FieldEvent, "ingest.master_repaired").
			Str(log.FieldOutputDir, outputDir).
			Msg("engine omitted master playlist, synthesized one")
	}

	s.checkMaster(logger, outputDir, len(job.Renditions))

	res.ManifestRef = ref
	return res, nil
}

// checkMaster reports a master playlist whose variant count differs from the
// ladder. Players still get whatever variants it lists.
func (s *Service) checkMaster(logger zerolog.Logger, outputDir string, want int) {
	f, err := os.Open(filepath.Join(outputDir, hls.MasterPlaylistName)) // #nosec G304 -- inside the packaging output dir
	if err != nil {
		logger.Warn().Err(err).Msg("could not open master playlist")
		return
	}
	defer func() { _ = f.Close() }()

	variants, err := hls.ParseMasterPlaylist(f)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "ingest.master_unparsable").Msg("master playlist unparsable")
		return
	}
	if len(variants) != want {
		logger.Warn().
			Str(log.FieldEvent, "ingest.master_variants_mismatch").
			Int("variants", len(variants)).
			Int("renditions", want).
			Msg("master playlist variant count differs from ladder")
	}
}

func (s *Service) transition(m *machine, logger zerolog.Logger, next State) {
	prev := m.current
	m.to(next)
	logger.Debug().
		Str(log.FieldEvent, "ingest.transition").
		Str(log.FieldOldState, string(prev)).
		Str(log.FieldNewState, string(next)).
		Msg("state change")
}

func failureReason(err error) string {
	var ee *hls.EngineError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ffmpeg.ErrStalled):
		return "stalled"
	case errors.Is(err, hls.ErrInputUnreadable):
		return "input_unreadable"
	case errors.Is(err, hls.ErrOutputDirInUse), errors.Is(err, hls.ErrOutsideRoot):
		return "output_dir"
	case errors.As(err, &ee):
		return "engine_exit"
	default:
		return "other"
	}
}
