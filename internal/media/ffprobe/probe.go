// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffprobe inspects uploaded media before packaging.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mitabo/mitabo/internal/log"
)

const maxStderr = 4096

// ErrNoPlayableStream is returned when the input has neither video nor audio.
var ErrNoPlayableStream = errors.New("ffprobe: no playable stream")

// StreamInfo is the subset of ffprobe output the pipeline uses.
type StreamInfo struct {
	Container string
	Duration  float64 // seconds
	Video     VideoInfo
	Audio     AudioInfo
}

type VideoInfo struct {
	Codec  string
	Width  int
	Height int
	FPS    float64
}

type AudioInfo struct {
	Codec      string
	TrackCount int
}

// HasVideo reports whether a video stream was found.
func (s *StreamInfo) HasVideo() bool { return s != nil && s.Video.Codec != "" }

// HasAudio reports whether at least one audio stream was found.
func (s *StreamInfo) HasAudio() bool { return s != nil && s.Audio.TrackCount > 0 }

// Prober runs ffprobe.
type Prober struct {
	Binary string
}

// NewProber returns a prober using binary ("ffprobe" if empty).
func NewProber(binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{Binary: binary}
}

// Probe executes ffprobe on path.
func (p *Prober) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	// #nosec G204 -- binary is operator configured, path is a stored upload
	cmd := exec.CommandContext(ctx, p.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, runErr := cmd.Output()
	info, parseErr := Parse(out)

	switch {
	case parseErr == nil:
		if runErr != nil {
			// Partial files often yield usable JSON with a non-zero exit.
			log.WithComponent("ffprobe").Warn().
				Err(runErr).
				Str(log.FieldPath, path).
				Str("stderr", truncate(stderr.String())).
				Msg("ffprobe non-zero exit but JSON accepted")
		}
		return info, nil
	case runErr != nil:
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", runErr, truncate(stderr.String()))
	default:
		return nil, parseErr
	}
}

// Parse decodes ffprobe JSON output.
func Parse(out []byte) (*StreamInfo, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}

	info := &StreamInfo{}
	for _, s := range data.Streams {
		if s.CodecName == "" {
			continue
		}
		switch s.CodecType {
		case "video":
			if info.Video.Codec != "" {
				continue // first video stream wins, like -map 0:v:0
			}
			info.Video.Codec = s.CodecName
			info.Video.Width = s.Width
			info.Video.Height = s.Height
			info.Video.FPS = parseRate(s.AvgFrameRate)
			if info.Video.FPS == 0 {
				info.Video.FPS = parseRate(s.RFrameRate)
			}
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.Duration = d
			}
		case "audio":
			if info.Audio.Codec == "" {
				info.Audio.Codec = s.CodecName
			}
			info.Audio.TrackCount++
		}
	}

	if !info.HasVideo() && !info.HasAudio() {
		return nil, ErrNoPlayableStream
	}

	if info.Duration == 0 && data.Format.Duration != "" {
		if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	// format_name is a comma list ("mov,mp4,m4a,3gp,3g2,mj2"); keep the first token.
	name, _, _ := strings.Cut(data.Format.FormatName, ",")
	info.Container = strings.TrimSpace(name)

	return info, nil
}

func parseRate(rate string) float64 {
	if rate == "" || rate == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func truncate(s string) string {
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}

type probeData struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
		RFrameRate   string `json:"r_frame_rate,omitempty"`
		Duration     string `json:"duration,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}
