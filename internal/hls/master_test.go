// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wantMaster = "#EXTM3U\n" +
	"#EXT-X-VERSION:3\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n" +
	"v0/index.m3u8\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
	"v1/index.m3u8\n"

func TestEnsureMasterPlaylist_WritesWhenMissing(t *testing.T) {
	dir := t.TempDir()

	repaired, err := EnsureMasterPlaylist(dir, DefaultLadder())
	require.NoError(t, err)
	assert.True(t, repaired)

	got, err := os.ReadFile(filepath.Join(dir, MasterPlaylistName))
	require.NoError(t, err)
	if diff := cmp.Diff(wantMaster, string(got)); diff != "" {
		t.Fatalf("master mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureMasterPlaylist_Idempotent(t *testing.T) {
	dir := t.TempDir()

	_, err := EnsureMasterPlaylist(dir, DefaultLadder())
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(dir, MasterPlaylistName))
	require.NoError(t, err)

	repaired, err := EnsureMasterPlaylist(dir, DefaultLadder())
	require.NoError(t, err)
	assert.False(t, repaired)
	second, err := os.ReadFile(filepath.Join(dir, MasterPlaylistName))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second))
	assert.Equal(t, RenderMasterPlaylist(DefaultLadder()), RenderMasterPlaylist(DefaultLadder()))
}

func TestEnsureMasterPlaylist_KeepsEngineOutput(t *testing.T) {
	dir := t.TempDir()
	engineMaster := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-STREAM-INF:BANDWIDTH=940800,RESOLUTION=640x360,CODECS=\"avc1.4d401e,mp4a.40.2\"\nv0/index.m3u8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, MasterPlaylistName), []byte(engineMaster), 0o644))

	repaired, err := EnsureMasterPlaylist(dir, DefaultLadder())
	require.NoError(t, err)
	assert.False(t, repaired)

	got, err := os.ReadFile(filepath.Join(dir, MasterPlaylistName))
	require.NoError(t, err)
	assert.Equal(t, engineMaster, string(got))
}

func TestEnsureMasterPlaylist_Errors(t *testing.T) {
	_, err := EnsureMasterPlaylist(t.TempDir(), nil)
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, MasterPlaylistName), 0o755))
	_, err = EnsureMasterPlaylist(dir, DefaultLadder())
	assert.Error(t, err)
}

func TestParseMasterPlaylist(t *testing.T) {
	variants, err := ParseMasterPlaylist(strings.NewReader(wantMaster))
	require.NoError(t, err)

	want := []Variant{
		{Bandwidth: 800000, Resolution: "640x360", URI: "v0/index.m3u8"},
		{Bandwidth: 2500000, Resolution: "1280x720", URI: "v1/index.m3u8"},
	}
	if diff := cmp.Diff(want, variants); diff != "" {
		t.Fatalf("variants mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMasterPlaylist_QuotedCodecs(t *testing.T) {
	in := "#EXTM3U\n#EXT-X-STREAM-INF:CODECS=\"avc1.4d401f,mp4a.40.2\",BANDWIDTH=2750000,RESOLUTION=1280x720\nv1/index.m3u8\n"
	variants, err := ParseMasterPlaylist(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, 2750000, variants[0].Bandwidth)
	assert.Equal(t, "1280x720", variants[0].Resolution)
}

func TestParseMasterPlaylist_Invalid(t *testing.T) {
	for name, in := range map[string]string{
		"empty":           "",
		"no header":       "#EXT-X-VERSION:3\n",
		"dangling inf":    "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n",
		"uri without inf": "#EXTM3U\nv0/index.m3u8\n",
		"bad bandwidth":   "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=fast\nv0/index.m3u8\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMasterPlaylist(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}
