// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	in := strings.Join([]string{
		"frame=12",
		"out_time_us=500000",
		"total_size=1024",
		"speed=1.5x",
		"progress=continue",
		"garbage line",
		"frame=24",
		"out_time_us=1000000",
		"total_size=4096",
		"speed=2x",
		"progress=end",
	}, "\n")

	var got []Progress
	ParseProgress(strings.NewReader(in), func(p Progress) { got = append(got, p) })

	require.Len(t, got, 2)
	assert.Equal(t, Progress{Frame: 12, OutTimeUs: 500000, TotalSize: 1024, Speed: "1.5x"}, got[0])
	assert.Equal(t, Progress{Frame: 24, OutTimeUs: 1000000, TotalSize: 4096, Speed: "2x", End: true}, got[1])
}

func TestProgressTracker_OnlyAdvancesOnGrowth(t *testing.T) {
	tr := &progressTracker{}
	past := time.Now().Add(-time.Hour)
	tr.touch(past)

	tr.update(Progress{})
	assert.Equal(t, past, tr.lastAdvance())

	tr.update(Progress{OutTimeUs: 10})
	assert.True(t, tr.lastAdvance().After(past))
	assert.Equal(t, int64(10), tr.snapshot().OutTimeUs)
}

func TestLineRing(t *testing.T) {
	r := newLineRing(3)
	_, _ = r.Write([]byte("one\ntwo\r\nthr"))
	_, _ = r.Write([]byte("ee\nfour\n\nfive"))

	assert.Equal(t, []string{"two", "three", "four", "five"}, r.Lines())
	assert.Equal(t, "two\nthree\nfour\nfive", r.String())
}

func TestLineRing_LongUnterminatedLineIsCapped(t *testing.T) {
	r := newLineRing(2)
	_, _ = r.Write([]byte(strings.Repeat("x", maxPartialLine+10)))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Len(t, lines[0], maxPartialLine)
}
