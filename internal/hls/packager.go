// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls turns one input file into a multi-rendition HLS asset and
// guarantees the asset directory carries a master playlist.
package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/mitabo/mitabo/internal/fsutil"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/media/ffmpeg"
	"github.com/rs/zerolog"
)

// MaxDiagnosticLen bounds EngineError.Diagnostic, in characters.
const MaxDiagnosticLen = 2000

var (
	// ErrInputUnreadable means the input vanished or cannot be opened.
	ErrInputUnreadable = errors.New("hls: input unreadable")
	// ErrOutputDirInUse rejects reuse of a non-empty output directory.
	ErrOutputDirInUse = errors.New("hls: output directory not empty")
	// ErrOutsideRoot rejects output directories outside the HLS root.
	ErrOutsideRoot = errors.New("hls: output directory outside root")
)

// Engine runs the transcoding engine with args, blocking until it exits.
// A nil error means exit status 0.
type Engine interface {
	Run(ctx context.Context, args []string) error
}

// EngineError is a failed engine run.
type EngineError struct {
	ExitCode   int    // -1 when killed or never started
	Diagnostic string // stderr tail, at most MaxDiagnosticLen characters
	Err        error
}

func (e *EngineError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("hls: engine exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("hls: engine failed: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func newEngineError(err error) *EngineError {
	ee := &EngineError{ExitCode: -1, Err: err}
	var runErr *ffmpeg.RunError
	if errors.As(err, &runErr) {
		ee.ExitCode = runErr.ExitCode
		ee.Diagnostic = TruncateDiagnostic(runErr.Stderr)
	} else {
		ee.Diagnostic = TruncateDiagnostic(err.Error())
	}
	return ee
}

// TruncateDiagnostic keeps the last MaxDiagnosticLen characters of s; the
// final lines of engine output carry the actual error.
func TruncateDiagnostic(s string) string {
	if utf8.RuneCountInString(s) <= MaxDiagnosticLen {
		return s
	}
	cut := len(s)
	for n := 0; n < MaxDiagnosticLen; n++ {
		_, size := utf8.DecodeLastRuneInString(s[:cut])
		cut -= size
	}
	return s[cut:]
}

// Packager runs packaging jobs below one HLS root.
type Packager struct {
	root   string
	engine Engine
	logger zerolog.Logger
}

// NewPackager returns a packager writing below root.
func NewPackager(root string, engine Engine) *Packager {
	return &Packager{
		root:   filepath.Clean(root),
		engine: engine,
		logger: log.WithComponent("hls"),
	}
}

// Root is the HLS root all manifest references are relative to.
func (p *Packager) Root() string { return p.root }

// Package runs job and returns the master playlist path relative to the
// root. The engine exit status is the only success signal; a failed run
// leaves whatever it wrote in place and the directory is never reused.
func (p *Packager) Package(ctx context.Context, job Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("invalid job: %w", err)
	}
	if err := fsutil.IsReadable(job.InputPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}

	outputDir, err := p.prepareOutputDir(job)
	if err != nil {
		return "", err
	}
	job.OutputDir = outputDir

	logger := log.WithContext(ctx, p.logger).With().
		Str(log.FieldOutputDir, outputDir).
		Int(log.FieldRenditions, len(job.Renditions)).
		Logger()

	args := BuildArgs(job)
	logger.Info().
		Str(log.FieldEvent, "packaging.start").
		Int("gop", job.GOPSize()).
		Float64(log.FieldFPS, job.FrameRate).
		Msg("starting packaging")

	start := time.Now()
	if err := p.engine.Run(ctx, args); err != nil {
		ee := newEngineError(err)
		logger.Error().
			Str(log.FieldEvent, "packaging.failed").
			Int("exit_code", ee.ExitCode).
			Dur("elapsed", time.Since(start)).
			Str("diagnostic", ee.Diagnostic).
			Err(err).
			Msg("engine run failed")
		return "", ee
	}

	p.inspectVariants(logger, job)

	ref, err := ManifestRef(p.root, outputDir)
	if err != nil {
		return "", err
	}
	logger.Info().
		Str(log.FieldEvent, "packaging.done").
		Str(log.FieldPlaylistPath, ref).
		Dur("elapsed", time.Since(start)).
		Msg("packaging finished")
	return ref, nil
}

// prepareOutputDir confines the output dir to the root, rejects reuse and
// creates one subdirectory per rendition.
func (p *Packager) prepareOutputDir(job Job) (string, error) {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return "", fmt.Errorf("create hls root: %w", err)
	}

	outputDir := job.OutputDir
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(p.root, outputDir)
	}
	confined, err := fsutil.ConfineAbsPath(p.root, outputDir)
	if err != nil {
		if errors.Is(err, fsutil.ErrEscapesRoot) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, job.OutputDir)
		}
		return "", fmt.Errorf("confine output dir: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(p.root)
	if err != nil {
		return "", fmt.Errorf("resolve hls root: %w", err)
	}
	if confined == realRoot {
		return "", fmt.Errorf("%w: output dir is the root itself", ErrOutsideRoot)
	}
	// Keep the caller's spelling of the root so references stay relative to it.
	rel, err := filepath.Rel(realRoot, confined)
	if err != nil {
		return "", err
	}
	outputDir = filepath.Join(p.root, rel)

	empty, err := fsutil.IsEmptyDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("inspect output dir: %w", err)
	}
	if !empty {
		return "", fmt.Errorf("%w: %s", ErrOutputDirInUse, outputDir)
	}

	for i := range job.Renditions {
		if err := os.MkdirAll(filepath.Join(outputDir, VariantDir(i)), 0o755); err != nil {
			return "", fmt.Errorf("create variant dir: %w", err)
		}
	}
	return outputDir, nil
}

// inspectVariants logs what each rendition playlist declares. Missing or odd
// playlists are reported, not fatal: exit status already decided success.
func (p *Packager) inspectVariants(logger zerolog.Logger, job Job) {
	for i := range job.Renditions {
		path := filepath.Join(job.OutputDir, VariantDir(i), VariantPlaylistName)
		data, err := os.ReadFile(path) // #nosec G304 -- below the confined output dir
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("variant playlist missing after successful run")
			continue
		}
		sum, err := InspectVariantPlaylist(string(data))
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("variant playlist unparsable")
			continue
		}
		logger.Debug().
			Str(log.FieldPath, path).
			Int("segments", sum.Segments).
			Dur("duration", sum.TotalDuration).
			Bool("vod", sum.IsVOD).
			Msg("variant playlist")
	}
}
