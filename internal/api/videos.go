// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mitabo/mitabo/internal/asset"
	"github.com/mitabo/mitabo/internal/blob"
	"github.com/mitabo/mitabo/internal/fsutil"
	"github.com/mitabo/mitabo/internal/hls"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/metrics"
)

// videoView is the public JSON shape of an asset.
type videoView struct {
	asset.Asset
	HLS       bool           `json:"hls"`
	SourceURL string         `json:"source_url"`
	Playback  asset.Playback `json:"playback"`
}

func newVideoView(a *asset.Asset) videoView {
	v := videoView{Asset: *a, HLS: a.HasHLS(), Playback: a.Playback()}
	if v.Playback.Kind == asset.PlaybackHLS {
		v.Playback.Path = "/hls/" + a.ManifestRef
	}
	v.SourceURL = v.Playback.Path
	return v
}

type listResponse struct {
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Total   int         `json:"total"`
	Items   []videoView `json:"items"`
}

func parseListQuery(r *http.Request) asset.ListQuery {
	q := r.URL.Query()
	atoi := func(s string) int {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	}
	category := q.Get("category")
	if category == "" {
		category = q.Get("cat")
	}
	return asset.ListQuery{
		Page:     atoi(q.Get("page")),
		PerPage:  atoi(q.Get("per_page")),
		Query:    strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(category),
	}.Normalize()
}

func listCacheKey(q asset.ListQuery) string {
	return fmt.Sprintf("videos:%d:%d:%s:%s", q.Page, q.PerPage, url.QueryEscape(q.Category), url.QueryEscape(q.Query))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := parseListQuery(r)
	key := listCacheKey(q)

	if body, ok := s.deps.Cache.Get(ctx, key); ok {
		metrics.RecordListingCache(true)
		writeRawJSON(w, http.StatusOK, body, "HIT")
		return
	}
	metrics.RecordListingCache(false)

	page, err := s.deps.Assets.List(ctx, q)
	if err != nil {
		log.WithComponentFromContext(ctx, "api").Error().Err(err).Str(log.FieldEvent, "videos.list_failed").Msg("listing failed")
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "could not list videos")
		return
	}

	resp := listResponse{Page: page.Page, PerPage: page.PerPage, Total: page.Total, Items: make([]videoView, 0, len(page.Items))}
	for i := range page.Items {
		resp.Items = append(resp.Items, newVideoView(&page.Items[i]))
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "could not encode listing")
		return
	}
	s.deps.Cache.Set(ctx, key, buf.Bytes(), s.cfg.CacheTTL)
	writeRawJSON(w, http.StatusOK, buf.Bytes(), "MISS")
}

func writeRawJSON(w http.ResponseWriter, code int, body []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Assets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.assetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVideoView(a))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	views, err := s.deps.Assets.IncrementViews(r.Context(), id)
	if err != nil {
		s.assetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "views": views})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.deps.Assets.Delete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.assetError(w, r, err)
		return
	}
	logger := log.WithComponentFromContext(ctx, "api").With().Str(log.FieldAssetID, a.ID).Logger()

	if a.OriginalKey != "" {
		if err := s.deps.Blobs.Delete(ctx, a.OriginalKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			logger.Warn().Err(err).Str(log.FieldEvent, "videos.original_delete_failed").Str("key", a.OriginalKey).Msg("could not delete original")
		}
	}
	if a.ManifestRef != "" {
		if err := s.removeHLSDir(a.ManifestRef); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "videos.hls_delete_failed").Str("manifest_ref", a.ManifestRef).Msg("could not delete packaged output")
		}
	}
	s.invalidateListings(ctx)

	logger.Info().Str(log.FieldEvent, "videos.deleted").Msg("video deleted")
	w.WriteHeader(http.StatusNoContent)
}

// removeHLSDir deletes the asset directory owning manifestRef, confined to the HLS root.
func (s *Server) removeHLSDir(manifestRef string) error {
	dir := hls.AssetDirOf(manifestRef)
	if dir == "" || dir == "." || dir == ".." {
		return fmt.Errorf("invalid manifest reference %q", manifestRef)
	}
	full, err := fsutil.ConfineRelPath(s.deps.HLSRoot, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(full)
}

func (s *Server) invalidateListings(ctx context.Context) {
	s.deps.Cache.Clear(ctx)
}

func (s *Server) assetError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, asset.ErrNotFound) {
		writeNotFound(w, r)
		return
	}
	log.WithComponentFromContext(r.Context(), "api").Error().Err(err).Str(log.FieldEvent, "videos.store_error").Msg("asset store failed")
	writeError(w, r, http.StatusInternalServerError, codeInternalError, "asset store failure")
}
