// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHLS(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "asset_a_0badc0de")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "v0"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "master.m3u8"), []byte("#EXTM3U\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v0", "seg_000.ts"), []byte("segment"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("no"), 0o600))
}

func TestSecureFileServer_ServesAllowlisted(t *testing.T) {
	root := t.TempDir()
	seedHLS(t, root)
	h := http.StripPrefix("/hls", SecureFileServer(HLSRoot(root)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hls/asset_a_0badc0de/master.m3u8", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "#EXTM3U\n", rec.Body.String())
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	seg := httptest.NewRecorder()
	h.ServeHTTP(seg, httptest.NewRequest(http.MethodGet, "/hls/asset_a_0badc0de/v0/seg_000.ts", nil))
	require.Equal(t, http.StatusOK, seg.Code)
	assert.Equal(t, "video/mp2t", seg.Header().Get("Content-Type"))
	assert.Contains(t, seg.Header().Get("Cache-Control"), "immutable")

	head := httptest.NewRecorder()
	h.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/hls/asset_a_0badc0de/master.m3u8", nil))
	assert.Equal(t, http.StatusOK, head.Code)
	assert.Empty(t, head.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/hls/asset_a_0badc0de/master.m3u8", nil)
	req.Header.Set("If-None-Match", etag)
	cached := httptest.NewRecorder()
	h.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)
}

func TestSecureFileServer_Denials(t *testing.T) {
	root := t.TempDir()
	seedHLS(t, root)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "leak.m3u8"), []byte("secret"), 0o600))
	require.NoError(t, os.Symlink(filepath.Join(outside, "leak.m3u8"), filepath.Join(root, "leak.m3u8")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.ts"), 0o750))

	h := http.StripPrefix("/hls", SecureFileServer(HLSRoot(root)))

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"dot dot", http.MethodGet, "/hls/../secret.m3u8", http.StatusForbidden},
		{"encoded dot dot", http.MethodGet, "/hls/%2e%2e/secret.m3u8", http.StatusForbidden},
		{"double encoded", http.MethodGet, "/hls/%252e%252e/secret.m3u8", http.StatusForbidden},
		{"disallowed extension", http.MethodGet, "/hls/asset_a_0badc0de/notes.txt", http.StatusForbidden},
		{"directory listing", http.MethodGet, "/hls/asset_a_0badc0de/", http.StatusForbidden},
		{"root listing", http.MethodGet, "/hls/", http.StatusForbidden},
		{"directory with allowed ext", http.MethodGet, "/hls/dir.ts", http.StatusForbidden},
		{"symlink escape", http.MethodGet, "/hls/leak.m3u8", http.StatusForbidden},
		{"missing", http.MethodGet, "/hls/asset_a_0badc0de/v1/index.m3u8", http.StatusNotFound},
		{"missing asset", http.MethodGet, "/hls/asset_zzz/master.m3u8", http.StatusNotFound},
		{"post", http.MethodPost, "/hls/asset_a_0badc0de/master.m3u8", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestSecureFileServer_MediaRoot(t *testing.T) {
	env := newTestEnv(t, &recordingIngester{})
	created := decode[uploadResult](t, env.upload(t, nil, "movie.mov", fakeVideo))
	require.Equal(t, "/media/movie.mov", created.DirectURL)

	rec := env.get(t, created.DirectURL)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/quicktime", rec.Header().Get("Content-Type"))
	assert.Equal(t, fakeVideo, rec.Body.Bytes())

	ranged := httptest.NewRequest(http.MethodGet, created.DirectURL, nil)
	ranged.Header.Set("Range", "bytes=0-3")
	part := env.do(t, ranged)
	assert.Equal(t, http.StatusPartialContent, part.Code)
	assert.Equal(t, fakeVideo[:4], part.Body.Bytes())

	assert.Equal(t, http.StatusForbidden, env.get(t, "/media/assets.sqlite").Code)
}

func TestIsPathTraversal(t *testing.T) {
	for _, p := range []string{"/a/../b", "..", "/%2e%2e/x", "/%252e%252e/x", "/a\\b", "/a%00b"} {
		assert.True(t, isPathTraversal(p), p)
	}
	for _, p := range []string{"/a/b.ts", "/a..b/c.m3u8", "/asset_x/master.m3u8", ""} {
		assert.False(t, isPathTraversal(p), p)
	}
}
