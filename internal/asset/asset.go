// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package asset holds the media asset record and its persistence.
package asset

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned for unknown asset IDs.
	ErrNotFound = errors.New("asset: not found")
	// ErrManifestAlreadySet guards the write-once manifest reference.
	ErrManifestAlreadySet = errors.New("asset: manifest reference already set")
)

// DefaultCategory is used when an upload names none or an unknown one.
const DefaultCategory = "trending"

// Categories is the allowlist of upload categories, in display order.
var Categories = []string{"trending", "gaming", "music", "film"}

// ValidCategory reports whether c is allowlisted.
func ValidCategory(c string) bool { return slices.Contains(Categories, c) }

// Asset is one uploaded video.
type Asset struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Creator         string    `json:"creator"`
	OriginalKey     string    `json:"-"`
	DirectURL       string    `json:"direct_url,omitempty"`
	ManifestRef     string    `json:"manifest_ref,omitempty"`
	PackagingNotice string    `json:"packaging_notice,omitempty"`
	Views           int64     `json:"views"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PlaybackKind selects the player.
type PlaybackKind string

const (
	PlaybackHLS    PlaybackKind = "hls"
	PlaybackDirect PlaybackKind = "direct"
)

// Playback is the resolved source of an asset.
type Playback struct {
	Kind PlaybackKind `json:"kind"`
	// Path is the manifest reference for HLS or the direct URL otherwise.
	Path string `json:"path"`
}

// Playback prefers the HLS manifest when one was recorded and falls back to
// the direct URL of the original.
func (a *Asset) Playback() Playback {
	if a.ManifestRef != "" {
		return Playback{Kind: PlaybackHLS, Path: a.ManifestRef}
	}
	return Playback{Kind: PlaybackDirect, Path: a.DirectURL}
}

// HasHLS reports whether an adaptive manifest is recorded.
func (a *Asset) HasHLS() bool { return a.ManifestRef != "" }

// ListQuery selects one page of assets, newest first.
type ListQuery struct {
	Page     int
	PerPage  int
	Query    string // substring of title or creator
	Category string
}

const (
	DefaultPerPage = 12
	MaxPerPage     = 50
)

// Normalize clamps paging to 1.. and 1..MaxPerPage.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PerPage <= 0:
		q.PerPage = DefaultPerPage
	case q.PerPage > MaxPerPage:
		q.PerPage = MaxPerPage
	}
	return q
}

// Page is one listing result.
type Page struct {
	Items   []Asset `json:"items"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// Store persists assets.
type Store interface {
	Create(ctx context.Context, a *Asset) error
	Get(ctx context.Context, id string) (*Asset, error)
	List(ctx context.Context, q ListQuery) (Page, error)
	// SetManifestRef records the manifest once; later calls fail with
	// ErrManifestAlreadySet.
	SetManifestRef(ctx context.Context, id, ref string) error
	SetProbe(ctx context.Context, id string, durationSeconds float64, width, height int) error
	SetNotice(ctx context.Context, id, notice string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	// Delete removes the record and returns it for blob and HLS cleanup.
	Delete(ctx context.Context, id string) (*Asset, error)
	Close() error
}
