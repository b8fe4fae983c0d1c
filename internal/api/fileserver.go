// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/mitabo/mitabo/internal/fsutil"
	"github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// StaticRoot is one directory exposed over HTTP.
type StaticRoot struct {
	// Name labels logs and metrics ("hls", "media").
	Name string
	Dir  string
	// ContentTypes allowlists extensions (with dot, lower case) and maps
	// them to the served Content-Type.
	ContentTypes map[string]string
	CacheControl func(ext string) string
}

// HLSRoot serves packaged playlists and segments only.
func HLSRoot(dir string) StaticRoot {
	return StaticRoot{
		Name: "hls",
		Dir:  dir,
		ContentTypes: map[string]string{
			".m3u8": "application/vnd.apple.mpegurl",
			".ts":   "video/mp2t",
		},
		CacheControl: func(ext string) string {
			if ext == ".ts" {
				return "public, max-age=86400, immutable"
			}
			// Master playlists may be rewritten by manifest repair.
			return "public, max-age=60"
		},
	}
}

// MediaRoot serves stored originals for direct playback.
func MediaRoot(dir string) StaticRoot {
	return StaticRoot{
		Name: "media",
		Dir:  dir,
		ContentTypes: map[string]string{
			".mp4":  "video/mp4",
			".m4v":  "video/x-m4v",
			".mov":  "video/quicktime",
			".mkv":  "video/x-matroska",
			".webm": "video/webm",
			".avi":  "video/x-msvideo",
		},
		CacheControl: func(string) string { return "public, max-age=3600" },
	}
}

var (
	errSecureFileNotFound  = errors.New("secure file not found")
	errSecurePathEscape    = errors.New("secure path escape")
	errSecureDirectoryPath = errors.New("secure directory path")
)

// SecureFileServer serves files below root.Dir with checks against path
// traversal, symlink escapes, directory listing and non-allowlisted types.
// The request path must already be stripped of the route prefix.
func SecureFileServer(root StaticRoot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "fileserver").With().Str("root", root.Name).Logger()

		rel, ext, ok := validateSecureFileRequest(w, r, root, logger)
		if !ok {
			return
		}

		realPath, err := resolveSecureFilePath(root.Dir, rel)
		if err != nil {
			handleSecureFileResolveError(w, r, root, rel, err, logger)
			return
		}

		if err := serveSecureFileContent(w, r, root, realPath, ext, logger); err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "file_req.internal_error").Str("path", realPath).Msg("could not serve file")
			metrics.IncFileDenied(root.Name, "internal_error")
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "could not serve file")
		}
	})
}

func deny(w http.ResponseWriter, r *http.Request, root StaticRoot, logger zerolog.Logger, code int, reason, msg string) {
	logger.Warn().Str(log.FieldEvent, "file_req.denied").Str("path", r.URL.Path).Str("reason", reason).Msg(msg)
	metrics.IncFileDenied(root.Name, reason)
	errCode := "forbidden"
	switch code {
	case http.StatusNotFound:
		errCode = codeNotFound
	case http.StatusMethodNotAllowed:
		errCode = codeMethodNotAllowed
	}
	writeError(w, r, code, errCode, msg)
}

func validateSecureFileRequest(w http.ResponseWriter, r *http.Request, root StaticRoot, logger zerolog.Logger) (string, string, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		deny(w, r, root, logger, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return "", "", false
	}

	p := r.URL.Path
	if isPathTraversal(p) || isPathTraversal(r.URL.RawPath) {
		deny(w, r, root, logger, http.StatusForbidden, "path_escape", "detected traversal sequence")
		return "", "", false
	}

	rel := strings.TrimPrefix(p, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		deny(w, r, root, logger, http.StatusForbidden, "directory_listing", "directory listing forbidden")
		return "", "", false
	}

	ext := strings.ToLower(path.Ext(rel))
	if _, ok := root.ContentTypes[ext]; !ok {
		deny(w, r, root, logger, http.StatusForbidden, "forbidden_extension", "file type not served")
		return "", "", false
	}

	return rel, ext, true
}

func resolveSecureFilePath(dir, rel string) (string, error) {
	realPath, err := fsutil.ConfineRelPath(dir, rel)
	if err != nil {
		if errors.Is(err, fsutil.ErrEscapesRoot) {
			return "", fmt.Errorf("%w: %s", errSecurePathEscape, rel)
		}
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", errSecureFileNotFound, rel)
		}
		return "", err
	}

	info, err := os.Stat(realPath)
	if err != nil {
		if os.IsNotExist(err) {
			return realPath, fmt.Errorf("%w: %s", errSecureFileNotFound, realPath)
		}
		return realPath, fmt.Errorf("stat resolved path: %w", err)
	}
	if info.IsDir() {
		return realPath, fmt.Errorf("%w: %s", errSecureDirectoryPath, realPath)
	}
	return realPath, nil
}

func handleSecureFileResolveError(w http.ResponseWriter, r *http.Request, root StaticRoot, rel string, err error, logger zerolog.Logger) {
	switch {
	case errors.Is(err, errSecureFileNotFound):
		logger.Debug().Str(log.FieldEvent, "file_req.not_found").Str("path", rel).Msg("file not found")
		metrics.IncFileDenied(root.Name, "not_found")
		writeError(w, r, http.StatusNotFound, codeNotFound, "file not found")
	case errors.Is(err, errSecurePathEscape):
		deny(w, r, root, logger, http.StatusForbidden, "path_escape", "path escapes root directory")
	case errors.Is(err, errSecureDirectoryPath):
		deny(w, r, root, logger, http.StatusForbidden, "directory_listing", "resolved path is a directory")
	default:
		logger.Error().Err(err).Str(log.FieldEvent, "file_req.internal_error").Str("path", rel).Msg("could not resolve secure path")
		metrics.IncFileDenied(root.Name, "internal_error")
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "could not resolve file")
	}
}

func serveSecureFileContent(w http.ResponseWriter, r *http.Request, root StaticRoot, realPath, ext string, logger zerolog.Logger) error {
	f, err := os.Open(realPath) // #nosec G304 -- confined below root
	if err != nil {
		return fmt.Errorf("open resolved path: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Str("path", realPath).Msg("failed to close file")
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat opened file: %w", err)
	}

	w.Header().Set("ETag", fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size()))
	if root.CacheControl != nil {
		w.Header().Set("Cache-Control", root.CacheControl(ext))
	}
	w.Header().Set("Content-Type", root.ContentTypes[ext])

	// ServeContent answers If-None-Match and Range requests.
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}

// isPathTraversal decodes p up to three times to catch double encoding,
// normalizes Unicode and looks for parent references and NUL bytes.
func isPathTraversal(p string) bool {
	decoded := p
	for range 3 {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	for _, pat := range []string{"%00", "%c0%ae", "%e0%80%ae", "\\"} {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	if strings.IndexByte(decoded, 0x00) >= 0 {
		return true
	}

	normalized := norm.NFC.String(decoded)
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
