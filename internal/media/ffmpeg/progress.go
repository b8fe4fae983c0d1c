// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Progress is one flushed block of "-progress" key=value output.
type Progress struct {
	Frame     int64
	OutTimeUs int64
	TotalSize int64
	Speed     string
	End       bool
}

func (p Progress) hasAdvanced(prev Progress) bool {
	return p.OutTimeUs > prev.OutTimeUs || p.TotalSize > prev.TotalSize || p.Frame > prev.Frame
}

type progressTracker struct {
	mu       sync.Mutex
	last     Progress
	advanced time.Time
}

func (t *progressTracker) touch(now time.Time) {
	t.mu.Lock()
	t.advanced = now
	t.mu.Unlock()
}

func (t *progressTracker) lastAdvance() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advanced
}

func (t *progressTracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *progressTracker) update(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.hasAdvanced(t.last) || p.End {
		t.advanced = time.Now()
	}
	t.last = p
}

// consume reads the progress stream until EOF.
func (t *progressTracker) consume(r io.Reader) {
	ParseProgress(r, t.update)
}

// ParseProgress reads key=value lines and calls emit on every "progress=" flush.
func ParseProgress(r io.Reader, emit func(Progress)) {
	scanner := bufio.NewScanner(r)
	var current Progress

	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		switch key {
		case "frame":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.Frame = v
			}
		case "out_time_us":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.OutTimeUs = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.TotalSize = v
			}
		case "speed":
			current.Speed = val
		case "progress":
			current.End = val == "end"
			emit(current)
		}
	}
	// Drain so the engine never blocks on a full pipe after a scan error.
	_, _ = io.Copy(io.Discard, r)
}

// lineRing is an io.Writer keeping the last N complete lines written to it.
type lineRing struct {
	mu      sync.Mutex
	lines   []string
	pos     int
	full    bool
	partial strings.Builder
}

const maxPartialLine = 8 << 10

func newLineRing(size int) *lineRing {
	return &lineRing{lines: make([]string, size)}
}

func (r *lineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := string(p)
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		r.partial.WriteString(data[:idx])
		r.add(strings.TrimRight(r.partial.String(), "\r"))
		r.partial.Reset()
		data = data[idx+1:]
	}
	if r.partial.Len()+len(data) > maxPartialLine {
		// Unterminated garbage: keep what we have as a line.
		r.partial.WriteString(data)
		r.add(r.partial.String()[:maxPartialLine])
		r.partial.Reset()
		return len(p), nil
	}
	r.partial.WriteString(data)
	return len(p), nil
}

func (r *lineRing) add(line string) {
	if line == "" {
		return
	}
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

// Lines returns the retained lines oldest first, including any unterminated tail.
func (r *lineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.full {
		out = make([]string, 0, len(r.lines)+1)
		out = append(out, r.lines[r.pos:]...)
		out = append(out, r.lines[:r.pos]...)
	} else {
		out = append([]string(nil), r.lines[:r.pos]...)
	}
	if r.partial.Len() > 0 {
		out = append(out, r.partial.String())
	}
	return out
}

func (r *lineRing) String() string {
	return strings.Join(r.Lines(), "\n")
}
