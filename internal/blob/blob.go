// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package blob stores uploaded originals, on local disk or in S3.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned for unknown keys.
var ErrNotFound = errors.New("blob: not found")

// Object describes a stored original.
type Object struct {
	Key  string
	URL  string // direct playback URL
	Size int64
}

// Store is the original-file store.
type Store interface {
	// Put stores r under a collision-free key derived from filename.
	Put(ctx context.Context, filename string, r io.Reader) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// LocalPath materializes key as a local file for the engine. cleanup
	// removes any temporary copy and is never nil.
	LocalPath(ctx context.Context, key string) (path string, cleanup func(), err error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
	Backend() string
}

// SanitizeFilename reduces name to a safe ASCII base name: accents are
// folded, separators and unsafe characters dropped.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = norm.NFKD.String(name)

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == ' ' || r == '\t':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "upload"
	}
	return out
}

// Ext returns the lower-case extension of name without the dot.
func Ext(name string) string {
	ext := path.Ext(SanitizeFilename(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
