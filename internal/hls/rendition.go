// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"fmt"
	"strconv"
)

const (
	// DefaultSegmentSeconds is the HLS segment target.
	DefaultSegmentSeconds = 4
	// DefaultFrameRate is assumed when the input frame rate is unknown.
	DefaultFrameRate = 24.0

	defaultAudioSampleRate = 48000
	defaultVideoProfile    = "main"
)

// Rendition is one quality variant of the packaged asset.
type Rendition struct {
	Name            string
	Width           int
	Height          int
	CRF             int // lower is better quality
	Bandwidth       int // declared bits per second
	VideoProfile    string
	AudioSampleRate int
}

// DefaultLadder returns the fixed two-step ladder, low quality first.
func DefaultLadder() []Rendition {
	return []Rendition{
		{
			Name:            "360p",
			Width:           640,
			Height:          360,
			CRF:             23,
			Bandwidth:       800_000,
			VideoProfile:    defaultVideoProfile,
			AudioSampleRate: defaultAudioSampleRate,
		},
		{
			Name:            "720p",
			Width:           1280,
			Height:          720,
			CRF:             21,
			Bandwidth:       2_500_000,
			VideoProfile:    defaultVideoProfile,
			AudioSampleRate: defaultAudioSampleRate,
		},
	}
}

// Resolution renders "WxH".
func (r Rendition) Resolution() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// ScaleFilter fits the input into the rendition box, never exceeding the
// source size, keeping the aspect ratio and even dimensions for yuv420p.
func (r Rendition) ScaleFilter() string {
	return fmt.Sprintf("scale=w='min(%d,iw)':h='min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		r.Width, r.Height)
}

func (r Rendition) profile() string {
	if r.VideoProfile == "" {
		return defaultVideoProfile
	}
	return r.VideoProfile
}

func (r Rendition) sampleRate() int {
	if r.AudioSampleRate <= 0 {
		return defaultAudioSampleRate
	}
	return r.AudioSampleRate
}

func (r Rendition) validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("rendition %q: invalid size %dx%d", r.Name, r.Width, r.Height)
	}
	if r.Bandwidth <= 0 {
		return fmt.Errorf("rendition %q: bandwidth must be positive", r.Name)
	}
	if r.CRF < 0 || r.CRF > 51 {
		return fmt.Errorf("rendition %q: crf %d out of range 0..51", r.Name, r.CRF)
	}
	return nil
}
