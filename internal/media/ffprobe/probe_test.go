// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001", "duration": "12.512"},
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "audio", "codec_name": "ac3"},
    {"codec_type": "data", "codec_name": ""}
  ],
  "format": {"duration": "12.600", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParse(t *testing.T) {
	info, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "mov", info.Container)
	assert.Equal(t, "h264", info.Video.Codec)
	assert.Equal(t, 1920, info.Video.Width)
	assert.Equal(t, 1080, info.Video.Height)
	assert.InDelta(t, 29.97, info.Video.FPS, 0.01)
	assert.InDelta(t, 12.512, info.Duration, 0.0001)
	assert.Equal(t, "aac", info.Audio.Codec)
	assert.Equal(t, 2, info.Audio.TrackCount)
	assert.True(t, info.HasVideo())
	assert.True(t, info.HasAudio())
}

func TestParse_FallsBackToFormatDurationAndRFrameRate(t *testing.T) {
	info, err := Parse([]byte(`{
	  "streams": [{"codec_type": "video", "codec_name": "vp9", "width": 640, "height": 360,
	               "avg_frame_rate": "0/0", "r_frame_rate": "25/1"}],
	  "format": {"duration": "3.5", "format_name": "matroska,webm"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 25.0, info.Video.FPS)
	assert.Equal(t, 3.5, info.Duration)
	assert.Equal(t, "matroska", info.Container)
	assert.False(t, info.HasAudio())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("not json"))
	require.Error(t, err)

	_, err = Parse([]byte(`{"streams": [], "format": {}}`))
	require.ErrorIs(t, err, ErrNoPlayableStream)
}

func TestParseRate(t *testing.T) {
	for in, want := range map[string]float64{
		"":           0,
		"0/0":        0,
		"24/1":       24,
		"25":         25,
		"1/0":        0,
		"abc/1":      0,
		"60000/1001": 59.94005994005994,
	} {
		assert.InDelta(t, want, parseRate(in), 1e-9, in)
	}
}

func TestProber_AcceptsJSONDespiteNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	bin := filepath.Join(t.TempDir(), "fake-ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" + sampleJSON + "\nJSON\necho 'truncated file' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	info, err := NewProber(bin).Probe(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Video.Width)
}

func TestProber_FailsWithoutJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	bin := filepath.Join(t.TempDir(), "fake-ffprobe")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'no such file' >&2\nexit 1\n"), 0o755))

	_, err := NewProber(bin).Probe(context.Background(), "missing.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}

func TestNewProber_DefaultBinary(t *testing.T) {
	assert.Equal(t, "ffprobe", NewProber(" ").Binary)
}
