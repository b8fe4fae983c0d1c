// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitabo/mitabo/internal/asset"
	"github.com/mitabo/mitabo/internal/blob"
	"github.com/mitabo/mitabo/internal/ingest"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/metrics"
	"github.com/rs/zerolog"
)

// AllowedExtensions lists accepted upload containers.
var AllowedExtensions = []string{"mp4", "mov", "mkv", "webm", "avi", "m4v"}

const (
	defaultTitle   = "Untitled"
	defaultCreator = "Anonymous"
	maxTitleLen    = 200
	maxTextLen     = 5000
)

type uploadResponse struct {
	videoView
	// Notice is the advisory shown when packaging fell back to direct playback.
	Notice string `json:"notice,omitempty"`
}

type uploadForm struct {
	title       string
	description string
	category    string
	creator     string
	pkg         bool
}

func parseUploadForm(r *http.Request) (uploadForm, error) {
	f := uploadForm{
		title:       truncate(strings.TrimSpace(r.FormValue("title")), maxTitleLen),
		description: truncate(strings.TrimSpace(r.FormValue("description")), maxTextLen),
		category:    strings.TrimSpace(r.FormValue("category")),
		creator:     truncate(strings.TrimSpace(r.FormValue("creator")), maxTitleLen),
		pkg:         true,
	}
	if f.title == "" {
		f.title = defaultTitle
	}
	if !asset.ValidCategory(f.category) {
		f.category = asset.DefaultCategory
	}
	if f.creator == "" {
		f.creator = defaultCreator
	}
	if raw := strings.TrimSpace(r.FormValue("package")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, errors.New("package must be a boolean")
		}
		f.pkg = v
	}
	return f, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "api.upload")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"upload exceeds "+strconv.FormatInt(s.cfg.MaxUploadBytes, 10)+" bytes")
			return
		}
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		writeError(w, r, http.StatusBadRequest, codeMissingFile, "no file received")
		return
	}
	defer func() { _ = file.Close() }()

	if !slices.Contains(AllowedExtensions, blob.Ext(header.Filename)) {
		writeError(w, r, http.StatusBadRequest, codeUnsupportedExt,
			"allowed extensions: "+strings.Join(AllowedExtensions, ", "))
		return
	}

	form, err := parseUploadForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	obj, err := s.deps.Blobs.Put(ctx, header.Filename, file)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "upload.store_failed").Msg("could not store original")
		writeError(w, r, http.StatusInternalServerError, codeStorageError, "could not store upload")
		return
	}
	metrics.AddUploadBytes(obj.Size)

	a := &asset.Asset{
		ID:          uuid.NewString(),
		Title:       form.title,
		Description: form.description,
		Category:    form.category,
		Creator:     form.creator,
		OriginalKey: obj.Key,
		DirectURL:   obj.URL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.deps.Assets.Create(ctx, a); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "upload.record_failed").Msg("could not create asset record")
		if derr := s.deps.Blobs.Delete(ctx, obj.Key); derr != nil {
			logger.Warn().Err(derr).Str("key", obj.Key).Msg("could not remove orphaned original")
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "could not record upload")
		return
	}
	logger = logger.With().Str(log.FieldAssetID, a.ID).Logger()

	// Packaging outlives a disconnecting client so the record ends consistent;
	// the ingest service applies its own timeout.
	res := s.ingest(context.WithoutCancel(ctx), a, obj.Key, form.pkg, logger)
	s.recordIngest(context.WithoutCancel(ctx), a, res, logger)
	s.invalidateListings(ctx)

	logger.Info().
		Str(log.FieldEvent, "upload.completed").
		Str("key", obj.Key).
		Int64("bytes", obj.Size).
		Bool("hls", a.HasHLS()).
		Msg("upload stored")

	writeJSON(w, http.StatusCreated, uploadResponse{videoView: newVideoView(a), Notice: res.Notice})
}

// ingest materializes the original locally and runs the packaging attempt.
func (s *Server) ingest(ctx context.Context, a *asset.Asset, key string, pkg bool, logger zerolog.Logger) ingest.Result {
	req := ingest.Request{AssetID: a.ID, Package: pkg}
	if pkg {
		path, cleanup, err := s.deps.Blobs.LocalPath(ctx, key)
		if err != nil {
			// An empty source path ends in the unreadable-input fallback.
			logger.Warn().Err(err).Str(log.FieldEvent, "upload.materialize_failed").Msg("could not materialize original for packaging")
		} else {
			defer cleanup()
			req.SourcePath = path
		}
	}
	return s.deps.Ingest.Ingest(ctx, req)
}

// recordIngest persists the outcome on the asset and mirrors it on a.
func (s *Server) recordIngest(ctx context.Context, a *asset.Asset, res ingest.Result, logger zerolog.Logger) {
	if p := res.Probe; p != nil {
		if err := s.deps.Assets.SetProbe(ctx, a.ID, p.Duration, p.Video.Width, p.Video.Height); err != nil {
			logger.Warn().Err(err).Msg("could not record probe results")
		} else {
			a.DurationSeconds, a.Width, a.Height = p.Duration, p.Video.Width, p.Video.Height
		}
	}
	if res.ManifestRef != "" {
		if err := s.deps.Assets.SetManifestRef(ctx, a.ID, res.ManifestRef); err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "upload.manifest_record_failed").Msg("could not record manifest reference")
			if rerr := s.removeHLSDir(res.ManifestRef); rerr != nil {
				logger.Warn().Err(rerr).Str("manifest_ref", res.ManifestRef).Msg("could not remove unrecorded packaged output")
			}
		} else {
			a.ManifestRef = res.ManifestRef
		}
	}
	if res.Notice != "" {
		if err := s.deps.Assets.SetNotice(ctx, a.ID, res.Notice); err != nil {
			logger.Warn().Err(err).Msg("could not record packaging notice")
		} else {
			a.PackagingNotice = res.Notice
		}
	}
}
