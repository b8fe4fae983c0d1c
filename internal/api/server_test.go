// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mitabo/mitabo/internal/asset"
	"github.com/mitabo/mitabo/internal/blob"
	"github.com/mitabo/mitabo/internal/cache"
	"github.com/mitabo/mitabo/internal/hls"
	"github.com/mitabo/mitabo/internal/ingest"
	"github.com/mitabo/mitabo/internal/media/capability"
	"github.com/mitabo/mitabo/internal/testutil"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv      *Server
	assets   *asset.SQLiteStore
	blobs    *blob.Local
	hlsRoot  string
	cache    *cache.Memory
	ingester Ingester
}

type envOption func(*Config, *Deps)

func withConfig(fn func(*Config)) envOption {
	return func(c *Config, _ *Deps) { fn(c) }
}

func newTestEnv(t *testing.T, ingester Ingester, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	assets, err := asset.OpenSQLite(context.Background(), filepath.Join(dir, "assets.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = assets.Close() })

	blobs, err := blob.NewLocal(filepath.Join(dir, "uploads"), "/media")
	require.NoError(t, err)

	hlsRoot := filepath.Join(dir, "hls")
	require.NoError(t, os.MkdirAll(hlsRoot, 0o750))

	mem := cache.NewMemory(0)
	t.Cleanup(func() { _ = mem.Close() })

	cfg := Config{}
	deps := Deps{
		Assets:   assets,
		Blobs:    blobs,
		Ingest:   ingester,
		Cache:    mem,
		HLSRoot:  hlsRoot,
		MediaDir: blobs.Dir(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	return &testEnv{
		srv:      New(cfg, deps),
		assets:   assets,
		blobs:    blobs,
		hlsRoot:  hlsRoot,
		cache:    mem,
		ingester: ingester,
	}
}

// packagingEnv wires the real ingest service over a fake engine.
func packagingEnv(t *testing.T, engine *testutil.FakeEngine, opts ...envOption) *testEnv {
	t.Helper()
	var env *testEnv
	lazy := &lazyIngester{}
	env = newTestEnv(t, lazy, opts...)
	lazy.svc = ingest.NewService(ingest.Config{}, capability.Static(true), hls.NewPackager(env.hlsRoot, engine))
	return env
}

type lazyIngester struct{ svc *ingest.Service }

func (l *lazyIngester) Ingest(ctx context.Context, req ingest.Request) ingest.Result {
	return l.svc.Ingest(ctx, req)
}

// recordingIngester returns a fixed result and remembers requests.
type recordingIngester struct {
	mu     sync.Mutex
	result ingest.Result
	reqs   []ingest.Request
	// sawFile reports whether SourcePath existed during Ingest.
	sawFile []bool
}

func (r *recordingIngester) Ingest(_ context.Context, req ingest.Request) ingest.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	_, err := os.Stat(req.SourcePath)
	r.sawFile = append(r.sawFile, req.SourcePath != "" && err == nil)
	return r.result
}

func (r *recordingIngester) requests() []ingest.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ingest.Request(nil), r.reqs...)
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", ct)
	return e.do(t, req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// uploadResult mirrors the upload response.
type uploadResult struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Category        string `json:"category"`
	Creator         string `json:"creator"`
	ManifestRef     string `json:"manifest_ref"`
	DirectURL       string `json:"direct_url"`
	PackagingNotice string `json:"packaging_notice"`
	Views           int64  `json:"views"`
	HLS             bool   `json:"hls"`
	SourceURL       string `json:"source_url"`
	Notice          string `json:"notice"`
	Playback        struct {
		Kind string `json:"kind"`
		Path string `json:"path"`
	} `json:"playback"`
}

type listResult struct {
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Total   int            `json:"total"`
	Items   []uploadResult `json:"items"`
}
