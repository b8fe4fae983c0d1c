// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// MasterPlaylistName is the top-level manifest inside an asset directory.
	MasterPlaylistName = "master.m3u8"
	// VariantPlaylistName is the per-rendition manifest.
	VariantPlaylistName = "index.m3u8"

	segmentPattern = "seg_%03d.ts"
	assetDirPrefix = "asset_"
)

// VariantDir is the subdirectory of rendition i ("v0", "v1", ...).
func VariantDir(i int) string {
	return "v" + strconv.Itoa(i)
}

// VariantPlaylistURI is the master-relative URI of rendition i.
func VariantPlaylistURI(i int) string {
	return path.Join(VariantDir(i), VariantPlaylistName)
}

// NewAssetDirName returns "asset_{id}_{8 hex}", unique per call.
func NewAssetDirName(assetID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return assetDirPrefix + sanitizeID(assetID) + "_" + suffix
}

// ManifestRef converts an output dir under root into the root-relative,
// forward-slash manifest reference.
func ManifestRef(root, outputDir string) (string, error) {
	rel, err := filepath.Rel(root, filepath.Join(outputDir, MasterPlaylistName))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return filepath.ToSlash(rel), nil
}

// AssetDirOf returns the asset directory component of a manifest reference.
func AssetDirOf(manifestRef string) string {
	dir, _, _ := strings.Cut(strings.TrimPrefix(manifestRef, "/"), "/")
	return dir
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
