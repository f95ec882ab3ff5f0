package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
)

// Store is the sqlite-backed source configuration and snapshot store
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, goerr.New("database path is required")
	}

	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, ":") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("dir", dir))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to enable foreign keys")
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// ListEnabledSources returns the enabled sources configured for the page
func (s *Store) ListEnabledSources(ctx context.Context, pageID string) ([]model.SourceConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, display_name, provider, owner, repo, base_url,
		       is_private, access_token, enabled, releases_limit
		FROM sources
		WHERE page_id = ? AND enabled = 1
		ORDER BY display_name`, pageID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query sources", goerr.V("page_id", pageID))
	}
	defer func() { _ = rows.Close() }()

	var srcs []model.SourceConfig
	for rows.Next() {
		var src model.SourceConfig
		var provider string
		if err := rows.Scan(&src.ID, &src.PageID, &src.DisplayName, &provider,
			&src.Owner, &src.Repo, &src.BaseURL,
			&src.IsPrivate, &src.AccessToken, &src.Enabled, &src.ReleasesLimit); err != nil {
			return nil, goerr.Wrap(err, "failed to scan source row")
		}
		src.Provider = types.Provider(provider)
		srcs = append(srcs, src)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate source rows")
	}
	return srcs, nil
}

// UpsertSource inserts or replaces a source configuration
func (s *Store) UpsertSource(ctx context.Context, src model.SourceConfig) error {
	if !src.Provider.Valid() {
		return goerr.New("unsupported provider", goerr.V("provider", src.Provider))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, page_id, display_name, provider, owner, repo,
		                     base_url, is_private, access_token, enabled, releases_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			page_id = excluded.page_id,
			display_name = excluded.display_name,
			provider = excluded.provider,
			owner = excluded.owner,
			repo = excluded.repo,
			base_url = excluded.base_url,
			is_private = excluded.is_private,
			access_token = excluded.access_token,
			enabled = excluded.enabled,
			releases_limit = excluded.releases_limit`,
		src.ID, src.PageID, src.DisplayName, string(src.Provider), src.Owner, src.Repo,
		src.BaseURL, src.IsPrivate, src.AccessToken, src.Enabled, src.Limit())
	if err != nil {
		return goerr.Wrap(err, "failed to upsert source", goerr.V("source_id", src.ID))
	}
	return nil
}

// GetSnapshot returns the last persisted payload for the page, or nil when
// no aggregation has succeeded yet
func (s *Store) GetSnapshot(ctx context.Context, pageID string) (*model.UnifiedChangelog, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM snapshots WHERE page_id = ?", pageID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query snapshot", goerr.V("page_id", pageID))
	}

	var changelog model.UnifiedChangelog
	if err := json.Unmarshal([]byte(payload), &changelog); err != nil {
		return nil, goerr.Wrap(err, "failed to decode snapshot payload", goerr.V("page_id", pageID))
	}
	return &changelog, nil
}

// SaveSnapshot replaces the persisted payload for the page
func (s *Store) SaveSnapshot(ctx context.Context, pageID string, changelog *model.UnifiedChangelog) error {
	payload, err := json.Marshal(changelog)
	if err != nil {
		return goerr.Wrap(err, "failed to encode snapshot payload", goerr.V("page_id", pageID))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (page_id, fetched_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			payload = excluded.payload`,
		pageID, changelog.FetchedAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return goerr.Wrap(err, "failed to save snapshot", goerr.V("page_id", pageID))
	}
	return nil
}
