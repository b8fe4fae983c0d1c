// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitabo/mitabo/internal/fsutil"
	"github.com/mitabo/mitabo/internal/metrics"
)

const maxCollisionSuffix = 10_000

// Local keeps originals in one directory and serves them below urlPrefix.
type Local struct {
	dir       string
	urlPrefix string
}

// NewLocal creates dir if needed.
func NewLocal(dir, urlPrefix string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir is the directory originals are written to.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Backend() string { return "local" }

// Put writes r to "name.ext", or "name-N.ext" when taken.
func (l *Local) Put(ctx context.Context, filename string, r io.Reader) (Object, error) {
	obj, err := l.put(ctx, filename, r)
	metrics.RecordBlobOp(l.Backend(), "put", err)
	return obj, err
}

func (l *Local) put(ctx context.Context, filename string, r io.Reader) (Object, error) {
	clean := SanitizeFilename(filename)
	ext := path.Ext(clean)
	base := strings.TrimSuffix(clean, ext)

	for n := 0; n < maxCollisionSuffix; n++ {
		if err := ctx.Err(); err != nil {
			return Object{}, err
		}
		key := clean
		if n > 0 {
			key = base + "-" + strconv.Itoa(n) + ext
		}
		target := filepath.Join(l.dir, key)

		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 -- sanitized base name
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Object{}, fmt.Errorf("create original: %w", err)
		}

		size, err := io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(target)
			return Object{}, fmt.Errorf("write original: %w", err)
		}
		return Object{Key: key, URL: l.URL(key), Size: size}, nil
	}
	return Object{}, fmt.Errorf("no free name for %q", clean)
}

func (l *Local) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "/") {
		return "", fmt.Errorf("%w: invalid key %q", ErrNotFound, key)
	}
	return fsutil.ConfineRelPath(l.dir, key)
}

// Open opens the stored original.
func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) // #nosec G304 -- confined to the upload dir
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// LocalPath returns the stored file itself.
func (l *Local) LocalPath(_ context.Context, key string) (string, func(), error) {
	p, err := l.path(key)
	if err != nil {
		return "", func() {}, err
	}
	if err := fsutil.IsRegularFile(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", func() {}, ErrNotFound
		}
		return "", func() {}, err
	}
	return p, func() {}, nil
}

// Delete removes the original. Missing keys are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err == nil {
		err = os.Remove(p)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}
	metrics.RecordBlobOp(l.Backend(), "delete", err)
	return err
}

// URL is the direct playback URL served by the media file server.
func (l *Local) URL(key string) string {
	return l.urlPrefix + "/" + key
}
