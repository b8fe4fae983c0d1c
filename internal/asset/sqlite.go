// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitabo/mitabo/internal/persistence/sqlite"
)

var migrations = []sqlite.Migration{
	{Version: 1, SQL: `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'trending',
		creator TEXT NOT NULL DEFAULT '',
		original_key TEXT NOT NULL,
		direct_url TEXT NOT NULL DEFAULT '',
		manifest_ref TEXT,
		packaging_notice TEXT NOT NULL DEFAULT '',
		views INTEGER NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_assets_category_created ON assets(category, created_at DESC);
	`},
}

// createdLayout is fixed width so text order matches time order.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

const assetColumns = `id, title, description, category, creator, original_key, direct_url,
	manifest_ref, packaging_notice, views, duration_seconds, width, height, created_at`

// SQLiteStore is the Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens dbPath and migrates the schema.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Create inserts a. Zero CreatedAt is stamped with the current time.
func (s *SQLiteStore) Create(ctx context.Context, a *Asset) error {
	if a.ID == "" {
		return errors.New("asset: empty id")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO assets (`+assetColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.Category, a.Creator, a.OriginalKey, a.DirectURL,
		nullString(a.ManifestRef), a.PackagingNotice, a.Views, a.DurationSeconds, a.Width, a.Height,
		a.CreatedAt.UTC().Format(createdLayout),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// Get loads one asset.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns one page, newest first.
func (s *SQLiteStore) List(ctx context.Context, q ListQuery) (Page, error) {
	q = q.Normalize()

	var (
		where []string
		args  []any
	)
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if term := strings.TrimSpace(q.Query); term != "" {
		like := "%" + escapeLike(term) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR creator LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := Page{Page: q.Page, PerPage: q.PerPage, Items: []Asset{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`+clause, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count assets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, q.PerPage, (q.Page-1)*q.PerPage)...)
	if err != nil {
		return page, fmt.Errorf("list assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *a)
	}
	return page, rows.Err()
}

// SetManifestRef records ref if no manifest has been recorded yet.
func (s *SQLiteStore) SetManifestRef(ctx context.Context, id, ref string) error {
	if ref == "" {
		return errors.New("asset: empty manifest reference")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET manifest_ref = ? WHERE id = ? AND manifest_ref IS NULL`, ref, id)
	if err != nil {
		return fmt.Errorf("set manifest ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrManifestAlreadySet
}

// SetProbe records what the stream probe found.
func (s *SQLiteStore) SetProbe(ctx context.Context, id string, durationSeconds float64, width, height int) error {
	return s.update(ctx, `UPDATE assets SET duration_seconds = ?, width = ?, height = ? WHERE id = ?`,
		durationSeconds, width, height, id)
}

// SetNotice records the packaging advisory.
func (s *SQLiteStore) SetNotice(ctx context.Context, id, notice string) error {
	return s.update(ctx, `UPDATE assets SET packaging_notice = ? WHERE id = ?`, notice, id)
}

// IncrementViews bumps the view counter and returns the new value.
func (s *SQLiteStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE assets SET views = views + 1 WHERE id = ? RETURNING views`, id).Scan(&views)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return views, nil
}

// Delete removes the record and returns what was stored.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM assets WHERE id = ? RETURNING `+assetColumns, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete asset: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (*Asset, error) {
	var (
		a         Asset
		manifest  sql.NullString
		createdAt string
	)
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Category, &a.Creator, &a.OriginalKey,
		&a.DirectURL, &manifest, &a.PackagingNotice, &a.Views, &a.DurationSeconds, &a.Width, &a.Height, &createdAt)
	if err != nil {
		return nil, err
	}
	a.ManifestRef = manifest.String
	if t, err := time.Parse(createdLayout, createdAt); err == nil {
		a.CreatedAt = t
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
