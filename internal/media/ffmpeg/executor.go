// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg runs the external transcoding engine under supervision:
// progress-based stall detection, context cancellation and process-group
// termination, with a bounded stderr tail kept for diagnostics.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/metrics"
	"github.com/mitabo/mitabo/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	defaultBinary       = "ffmpeg"
	defaultStartupGrace = 30 * time.Second
	defaultTick         = 5 * time.Second
	defaultKillGrace    = 5 * time.Second
	defaultStderrLines  = 200
)

// ErrStalled is returned when the engine stops reporting progress.
var ErrStalled = errors.New("ffmpeg stalled")

// RunError describes an unsuccessful engine run.
type RunError struct {
	ExitCode int    // -1 if the process did not exit on its own
	Stderr   string // last lines of stderr
	Err      error  // underlying cause (exec error, ErrStalled, ctx error)
}

func (e *RunError) Error() string {
	switch {
	case errors.Is(e.Err, ErrStalled):
		return "ffmpeg stalled and was killed"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "ffmpeg killed: deadline exceeded"
	case errors.Is(e.Err, context.Canceled):
		return "ffmpeg killed: canceled"
	case e.ExitCode >= 0:
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	default:
		return fmt.Sprintf("ffmpeg failed: %v", e.Err)
	}
}

func (e *RunError) Unwrap() error { return e.Err }

// Executor runs the engine binary. The zero value is usable and runs "ffmpeg"
// with default supervision settings.
type Executor struct {
	Binary string
	Logger zerolog.Logger

	// StallTimeout kills the engine when progress has not advanced for this
	// long. Zero disables stall detection.
	StallTimeout time.Duration
	// StartupGrace suppresses stall checks right after start (input probing).
	StartupGrace time.Duration
	// Tick is the supervision interval.
	Tick time.Duration
	// KillGrace is the SIGTERM to SIGKILL escalation delay.
	KillGrace time.Duration
	// StderrLines bounds the retained stderr tail.
	StderrLines int
}

// NewExecutor returns an executor for binary with the component logger.
func NewExecutor(binary string, stallTimeout time.Duration) *Executor {
	return &Executor{
		Binary:       binary,
		Logger:       log.WithComponent("ffmpeg"),
		StallTimeout: stallTimeout,
	}
}

// Run executes the engine with args and blocks until it exits, stalls or ctx
// ends. A nil return means exit status 0.
func (e *Executor) Run(ctx context.Context, args []string) error {
	bin := e.Binary
	if bin == "" {
		bin = defaultBinary
	}

	fullArgs := append([]string{"-nostdin", "-progress", "pipe:1"}, args...)
	// #nosec G204 -- binary comes from operator config, args are built internally
	cmd := exec.Command(bin, fullArgs...)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &RunError{ExitCode: -1, Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	stderr := newLineRing(e.stderrLines())
	cmd.Stderr = stderr

	e.Logger.Debug().Str("cmd", CommandLine(bin, fullArgs)).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		return &RunError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", bin, err)}
	}

	tracker := &progressTracker{}
	tracker.touch(time.Now())
	parsed := make(chan struct{})
	go func() {
		defer close(parsed)
		tracker.consume(stdout)
	}()

	// Wait only after the progress pipe has been drained.
	done := make(chan error, 1)
	go func() {
		<-parsed
		done <- cmd.Wait()
	}()

	waitErr, cause := e.supervise(ctx, cmd, done, tracker)

	if cause == nil && waitErr == nil {
		return nil
	}

	runErr := &RunError{ExitCode: -1, Stderr: stderr.String(), Err: cause}
	if cause == nil {
		runErr.Err = waitErr
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			runErr.ExitCode = exitErr.ExitCode()
		}
	}
	return runErr
}

// supervise returns the Wait result and, if the engine was killed by us, why.
func (e *Executor) supervise(ctx context.Context, cmd *exec.Cmd, done chan error, tracker *progressTracker) (waitErr, cause error) {
	tick := e.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	grace := e.StartupGrace
	if grace <= 0 && e.StallTimeout > 0 {
		grace = defaultStartupGrace
		if e.StallTimeout < grace {
			grace = 0
		}
	}

	start := time.Now()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err, nil

		case <-ctx.Done():
			e.Logger.Warn().
				Str(log.FieldEvent, "engine.canceled").
				Err(ctx.Err()).
				Msg("context ended, terminating ffmpeg process group")
			return procgroup.Terminate(cmd, done, e.killGrace()), ctx.Err()

		case <-ticker.C:
			if e.StallTimeout <= 0 || time.Since(start) < grace {
				continue
			}
			since := time.Since(tracker.lastAdvance())
			if since <= e.StallTimeout {
				continue
			}
			p := tracker.snapshot()
			metrics.IncEngineStall()
			e.Logger.Error().
				Str(log.FieldEvent, "engine.stalled").
				Dur("since_progress", since).
				Int64("last_out_time_us", p.OutTimeUs).
				Int64("last_total_size", p.TotalSize).
				Str("last_speed", p.Speed).
				Msg("ffmpeg stalled, terminating process group")
			return procgroup.Terminate(cmd, done, e.killGrace()), ErrStalled
		}
	}
}

func (e *Executor) killGrace() time.Duration {
	if e.KillGrace > 0 {
		return e.KillGrace
	}
	return defaultKillGrace
}

func (e *Executor) stderrLines() int {
	if e.StderrLines > 0 {
		return e.StderrLines
	}
	return defaultStderrLines
}

// CommandLine renders args for logs.
func CommandLine(bin string, args []string) string {
	return bin + " " + strings.Join(args, " ")
}
