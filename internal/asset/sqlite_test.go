// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package asset

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "assets.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore, id, title, creator, category string, at time.Time) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &Asset{
		ID:          id,
		Title:       title,
		Creator:     creator,
		Category:    category,
		OriginalKey: id + ".mp4",
		DirectURL:   "/media/" + id + ".mp4",
		CreatedAt:   at,
	}))
}

func TestSQLiteStore_CreateGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, "a1", "Sunset", "ana", "film", at)

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Sunset", got.Title)
	assert.Equal(t, "a1.mp4", got.OriginalKey)
	assert.Equal(t, at, got.CreatedAt)
	assert.Empty(t, got.ManifestRef)
	assert.Equal(t, Playback{Kind: PlaybackDirect, Path: "/media/a1.mp4"}, got.Playback())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ManifestRefIsWriteOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "a1", "t", "c", "trending", time.Now())

	require.NoError(t, s.SetManifestRef(ctx, "a1", "asset_a1_0000abcd/master.m3u8"))
	err := s.SetManifestRef(ctx, "a1", "asset_a1_ffffffff/master.m3u8")
	assert.ErrorIs(t, err, ErrManifestAlreadySet)

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "asset_a1_0000abcd/master.m3u8", got.ManifestRef)
	assert.Equal(t, Playback{Kind: PlaybackHLS, Path: "asset_a1_0000abcd/master.m3u8"}, got.Playback())

	assert.ErrorIs(t, s.SetManifestRef(ctx, "nope", "x/master.m3u8"), ErrNotFound)
	assert.Error(t, s.SetManifestRef(ctx, "a1", ""))
}

func TestSQLiteStore_ConcurrentManifestWriters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "a1", "t", "c", "trending", time.Now())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.SetManifestRef(ctx, "a1", fmt.Sprintf("asset_a1_%08d/master.m3u8", i)) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSQLiteStore_ListPagingAndFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 15 {
		cat := "music"
		if i%3 == 0 {
			cat = "gaming"
		}
		seed(t, s, fmt.Sprintf("id%02d", i), fmt.Sprintf("Clip %d", i), "creator", cat, base.Add(time.Duration(i)*time.Minute))
	}
	seed(t, s, "special", "100%_real", "Marie", "film", base.Add(-time.Hour))

	page, err := s.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 16, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPerPage, page.PerPage)
	require.Len(t, page.Items, DefaultPerPage)
	assert.Equal(t, "id14", page.Items[0].ID, "newest first")

	page, err = s.List(ctx, ListQuery{Page: 2, PerPage: 12})
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "special", page.Items[3].ID)

	page, err = s.List(ctx, ListQuery{Category: "gaming", PerPage: 100})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, MaxPerPage, page.PerPage)

	page, err = s.List(ctx, ListQuery{Query: "marie"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "special", page.Items[0].ID)

	page, err = s.List(ctx, ListQuery{Query: "%_"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "LIKE wildcards are literal")

	page, err = s.List(ctx, ListQuery{Query: "nothing matches"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)
}

func TestSQLiteStore_ViewsNoticeProbeDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s, "a1", "t", "c", "trending", time.Now())

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementViews(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := s.IncrementViews(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetNotice(ctx, "a1", "adaptive packaging failed, direct playback will be used"))
	require.NoError(t, s.SetProbe(ctx, "a1", 12.5, 1920, 1080))
	assert.ErrorIs(t, s.SetNotice(ctx, "missing", "x"), ErrNotFound)

	deleted, err := s.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted.Views)
	assert.Equal(t, 1920, deleted.Width)
	assert.Equal(t, "adaptive packaging failed, direct playback will be used", deleted.PackagingNotice)

	_, err = s.Delete(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListQuery_Normalize(t *testing.T) {
	assert.Equal(t, ListQuery{Page: 1, PerPage: 12}, ListQuery{Page: -3}.Normalize())
	assert.Equal(t, ListQuery{Page: 2, PerPage: 50}, ListQuery{Page: 2, PerPage: 51}.Normalize())
	assert.Equal(t, ListQuery{Page: 1, PerPage: 1}, ListQuery{PerPage: 1}.Normalize())
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory(DefaultCategory))
	assert.True(t, ValidCategory("film"))
	assert.False(t, ValidCategory("tendance"))
	assert.False(t, ValidCategory(""))
}
