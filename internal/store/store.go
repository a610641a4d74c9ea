// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists normalized records and the query cache in an
// embedded SQLite database. The write path (SaveQueryResult) is designed
// to run under the pipeline's FIFO write mutex; reads are point lookups
// that may interleave freely with writes at SQLite's own isolation level.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/biblio-gateway/pkg/types"
)

// timeFormat is second-precision RFC3339 in UTC. The fixed width keeps
// lexicographic comparison in SQL equal to chronological order.
const timeFormat = "2006-01-02T15:04:05Z"

// DownloadStatus tracks PDF acquisition state owned by the external
// acquisition collaborator. Metadata upserts never touch it.
type DownloadStatus string

const (
	DownloadNone   DownloadStatus = "none"
	DownloadDone   DownloadStatus = "downloaded"
	DownloadFailed DownloadStatus = "failed"
)

// Article is one persisted row: the normalized record plus the
// collaborator-owned download state and row timestamps.
type Article struct {
	types.Record

	PDFPath        string
	DownloadStatus DownloadStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store manages the gateway SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			title TEXT,
			authors TEXT,
			journal TEXT,
			year TEXT,
			url TEXT,
			keywords TEXT,
			abstract TEXT,
			raw_json TEXT,
			pdf_path TEXT NOT NULL DEFAULT '',
			download_status TEXT NOT NULL DEFAULT 'none',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS query_cache (
			cache_key TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			params_json TEXT NOT NULL,
			result_json TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_cache_expires ON query_cache(expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// SaveQueryResult persists the records and the cache row in one
// transaction. Callers serialize invocations through the pipeline's
// write mutex; the transaction makes the pair atomic against crashes.
func (s *Store) SaveQueryResult(ctx context.Context, records []types.Record, rec types.CacheRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertArticles(ctx, tx, records); err != nil {
		return err
	}
	if err := upsertCache(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// execer abstracts *sql.DB and *sql.Tx for the upsert helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertArticles inserts or updates one row per record. The update path
// overwrites only the normalized metadata columns and updated_at;
// collaborator-owned columns (pdf_path, download_status) and created_at
// are preserved.
func upsertArticles(ctx context.Context, ex execer, records []types.Record) error {
	now := time.Now().UTC().Format(timeFormat)
	for _, r := range records {
		authorsJSON, err := json.Marshal(r.Authors)
		if err != nil {
			return fmt.Errorf("encoding authors for %s: %w", r.ID, err)
		}
		keywordsJSON, err := json.Marshal(r.Keywords)
		if err != nil {
			return fmt.Errorf("encoding keywords for %s: %w", r.ID, err)
		}
		rawJSON, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("encoding raw payload for %s: %w", r.ID, err)
		}

		var abstract any
		if r.Abstract != nil {
			abstract = *r.Abstract
		}

		_, err = ex.ExecContext(ctx,
			`INSERT INTO articles (id, title, authors, journal, year, url, keywords, abstract, raw_json, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				title=excluded.title, authors=excluded.authors,
				journal=excluded.journal, year=excluded.year,
				raw_json=excluded.raw_json, updated_at=excluded.updated_at`,
			r.ID, r.Title, string(authorsJSON), r.Publisher, r.Year, r.URL,
			string(keywordsJSON), abstract, string(rawJSON), now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting article %s: %w", r.ID, err)
		}
	}
	return nil
}

func upsertCache(ctx context.Context, ex execer, rec types.CacheRecord) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO query_cache (cache_key, tool, params_json, result_json, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			tool=excluded.tool, params_json=excluded.params_json,
			result_json=excluded.result_json, fetched_at=excluded.fetched_at,
			expires_at=excluded.expires_at`,
		rec.CacheKey, rec.Tool, rec.ParamsJSON, rec.ResultJSON,
		rec.FetchedAt.UTC().Format(timeFormat), rec.ExpiresAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting cache record: %w", err)
	}
	return nil
}

// GetArticle returns the persisted row for id, or nil when absent.
func (s *Store) GetArticle(ctx context.Context, id string) (*Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, authors, journal, year, url, keywords, abstract, raw_json,
			pdf_path, download_status, created_at, updated_at
		 FROM articles WHERE id = ?`, id)

	var (
		a                                  Article
		authorsJSON, keywordsJSON, rawJSON string
		abstract                           sql.NullString
		createdAt, updatedAt               string
	)
	err := row.Scan(&a.ID, &a.Title, &authorsJSON, &a.Publisher, &a.Year, &a.URL,
		&keywordsJSON, &abstract, &rawJSON, &a.PDFPath, &a.DownloadStatus,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading article %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(authorsJSON), &a.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &a.Keywords); err != nil {
		return nil, fmt.Errorf("decoding keywords for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rawJSON), &a.Raw); err != nil {
		return nil, fmt.Errorf("decoding raw payload for %s: %w", id, err)
	}
	if abstract.Valid {
		a.Abstract = &abstract.String
	}
	if a.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", id, err)
	}
	if a.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for %s: %w", id, err)
	}
	return &a, nil
}

// CountArticles returns the number of persisted articles.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

// SetDownloadState records the acquisition collaborator's state for an
// article. It is the only writer of pdf_path and download_status.
func (s *Store) SetDownloadState(ctx context.Context, id, pdfPath string, status DownloadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET pdf_path = ?, download_status = ? WHERE id = ?`,
		pdfPath, status, id)
	if err != nil {
		return fmt.Errorf("updating download state for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s not found", id)
	}
	return nil
}
