// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capability answers whether a transcoding engine is usable on this host.
package capability

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultBinary is the engine looked up when no binary is configured.
const DefaultBinary = "ffmpeg"

// LookPathFunc resolves a binary name to an executable path.
type LookPathFunc func(file string) (string, error)

// Checker is the contract the ingestion orchestrator consumes.
type Checker interface {
	Available(ctx context.Context) bool
}

// Probe resolves the engine binary on the executable search path.
// A zero TTL re-resolves on every call; a positive TTL caches the last
// answer for that long within the process.
type Probe struct {
	binary   string
	ttl      time.Duration
	lookPath LookPathFunc
	now      func() time.Time
	logger   zerolog.Logger

	group singleflight.Group

	mu        sync.Mutex
	cached    bool
	resolved  string
	checkedAt time.Time
	valid     bool
}

// Option customises a Probe.
type Option func(*Probe)

// WithTTL enables per-process caching of the probe result.
func WithTTL(ttl time.Duration) Option {
	return func(p *Probe) { p.ttl = ttl }
}

// WithLookPath replaces exec.LookPath; used by tests.
func WithLookPath(fn LookPathFunc) Option {
	return func(p *Probe) { p.lookPath = fn }
}

// WithLogger sets the logger used for probe results.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Probe) { p.logger = l }
}

// NewProbe returns a probe for binary (DefaultBinary if empty).
func NewProbe(binary string, opts ...Option) *Probe {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	p := &Probe{
		binary:   binary,
		lookPath: exec.LookPath,
		now:      time.Now,
		logger:   log.WithComponent("capability"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Binary returns the configured engine name.
func (p *Probe) Binary() string { return p.binary }

// Available reports whether the engine binary is resolvable. It never fails:
// any resolution error is reported as false.
func (p *Probe) Available(ctx context.Context) bool {
	ok, _ := p.Resolve(ctx)
	return ok
}

// Resolve is Available plus the resolved executable path.
func (p *Probe) Resolve(ctx context.Context) (bool, string) {
	if ok, path, hit := p.fromCache(); hit {
		return ok, path
	}

	v, _, _ := p.group.Do(p.binary, func() (any, error) {
		path, err := p.lookPath(p.binary)
		res := probeResult{ok: err == nil && path != "", path: path}

		metrics.RecordEngineProbe(res.ok)
		evt := p.logger.Debug()
		if !res.ok {
			evt = p.logger.Info()
		}
		evt.
			Str(log.FieldEvent, "engine.probe").
			Str("binary", p.binary).
			Str("resolved", path).
			Bool("available", res.ok).
			Err(err).
			Msg("transcoding engine probe")

		p.store(res)
		return res, nil
	})
	res := v.(probeResult)
	return res.ok, res.path
}

type probeResult struct {
	ok   bool
	path string
}

func (p *Probe) fromCache() (bool, string, bool) {
	if p.ttl <= 0 {
		return false, "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cached || p.now().Sub(p.checkedAt) > p.ttl {
		return false, "", false
	}
	return p.valid, p.resolved, true
}

func (p *Probe) store(res probeResult) {
	if p.ttl <= 0 {
		return
	}
	p.mu.Lock()
	p.cached = true
	p.valid = res.ok
	p.resolved = res.path
	p.checkedAt = p.now()
	p.mu.Unlock()
}

// Static is a Checker with a fixed answer.
type Static bool

// Available returns the fixed answer.
func (s Static) Available(context.Context) bool { return bool(s) }
