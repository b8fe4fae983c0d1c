// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// PlaylistType is the HLS playlist type written by the engine.
type PlaylistType string

// PlaylistVOD is the only type produced: the whole input is known up front.
const PlaylistVOD PlaylistType = "vod"

// Job is one engine invocation. It is built per upload and discarded after.
type Job struct {
	InputPath      string
	OutputDir      string
	Renditions     []Rendition
	SegmentSeconds int
	PlaylistType   PlaylistType
	// FrameRate is the declared input frame rate used to size the GOP.
	FrameRate float64
	// NoAudio drops the audio mapping for inputs without an audio stream.
	NoAudio bool
}

// NewJob returns a job with the default ladder, segment length and frame rate.
func NewJob(inputPath, outputDir string) Job {
	return Job{
		InputPath:      inputPath,
		OutputDir:      outputDir,
		Renditions:     DefaultLadder(),
		SegmentSeconds: DefaultSegmentSeconds,
		PlaylistType:   PlaylistVOD,
		FrameRate:      DefaultFrameRate,
	}
}

// GOPSize is the keyframe interval in frames: one segment worth of frames.
func (j Job) GOPSize() int {
	fps := j.FrameRate
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFrameRate
	}
	gop := int(math.Round(fps * float64(j.segmentSeconds())))
	if gop < 1 {
		return 1
	}
	return gop
}

func (j Job) segmentSeconds() int {
	if j.SegmentSeconds <= 0 {
		return DefaultSegmentSeconds
	}
	return j.SegmentSeconds
}

// Validate checks the static shape of the job.
func (j Job) Validate() error {
	if strings.TrimSpace(j.InputPath) == "" {
		return errors.New("input path is empty")
	}
	if strings.TrimSpace(j.OutputDir) == "" {
		return errors.New("output dir is empty")
	}
	if len(j.Renditions) == 0 {
		return errors.New("no renditions")
	}
	if j.PlaylistType != "" && j.PlaylistType != PlaylistVOD {
		return fmt.Errorf("unsupported playlist type %q", j.PlaylistType)
	}
	for _, r := range j.Renditions {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

// BuildArgs renders the engine arguments for j: every rendition is encoded in
// one pass, one variant stream per rendition, with keyframes pinned to
// segment boundaries so renditions switch cleanly.
func BuildArgs(j Job) []string {
	seg := strconv.Itoa(j.segmentSeconds())
	gop := strconv.Itoa(j.GOPSize())

	args := []string{"-y", "-hide_banner", "-i", j.InputPath}

	for i, r := range j.Renditions {
		n := strconv.Itoa(i)
		args = append(args,
			"-filter:v:"+n, r.ScaleFilter(),
			"-c:v:"+n, "libx264",
			"-profile:v:"+n, r.profile(),
			"-crf:v:"+n, strconv.Itoa(r.CRF),
		)
		if !j.NoAudio {
			args = append(args,
				"-c:a:"+n, "aac",
				"-ar:a:"+n, strconv.Itoa(r.sampleRate()),
			)
		}
	}

	args = append(args,
		"-pix_fmt", "yuv420p",
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
		"-force_key_frames", "expr:gte(t,n_forced*"+seg+")",
	)

	streams := make([]string, len(j.Renditions))
	for i := range j.Renditions {
		n := strconv.Itoa(i)
		args = append(args, "-map", "0:v:0")
		if j.NoAudio {
			streams[i] = "v:" + n
			continue
		}
		args = append(args, "-map", "0:a:0?")
		streams[i] = "v:" + n + ",a:" + n
	}

	args = append(args,
		"-var_stream_map", strings.Join(streams, " "),
		"-master_pl_name", MasterPlaylistName,
		"-f", "hls",
		"-hls_time", seg,
		"-hls_playlist_type", string(PlaylistVOD),
		"-hls_segment_filename", filepath.Join(j.OutputDir, "v%v", segmentPattern),
		filepath.Join(j.OutputDir, "v%v", VariantPlaylistName),
	)
	return args
}
