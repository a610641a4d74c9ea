// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/biblio-gateway/pkg/types"
)

// Paging defaults applied during key derivation so requests that omit
// paging collide with requests that pass the default values explicitly.
const (
	DefaultPage      = 1
	DefaultPageCount = 10
)

// CacheKey derives the canonical fingerprint for a request. Parameter
// keys are sorted and page/pagecount defaulted, so logically identical
// requests always produce the same key regardless of argument order.
func CacheKey(tool, target string, params map[string]string, page, pageCount int) string {
	if page <= 0 {
		page = DefaultPage
	}
	if pageCount <= 0 {
		pageCount = DefaultPageCount
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(tool)
	b.WriteByte('\x1f')
	b.WriteString(target)
	for _, k := range keys {
		b.WriteByte('\x1f')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteByte('\x1f')
	b.WriteString("page=")
	b.WriteString(strconv.Itoa(page))
	b.WriteByte('\x1f')
	b.WriteString("pagecount=")
	b.WriteString(strconv.Itoa(pageCount))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CacheGet returns the live cache record for key, or nil on a miss. An
// expired record behaves exactly like a missing one and is left in place;
// only SweepCache deletes rows.
func (s *Store) CacheGet(ctx context.Context, key string) (*types.CacheRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, tool, params_json, result_json, fetched_at, expires_at
		 FROM query_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC().Format(timeFormat))

	var rec types.CacheRecord
	var fetchedAt, expiresAt string
	err := row.Scan(&rec.CacheKey, &rec.Tool, &rec.ParamsJSON, &rec.ResultJSON, &fetchedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache record: %w", err)
	}
	if rec.FetchedAt, err = time.Parse(timeFormat, fetchedAt); err != nil {
		return nil, fmt.Errorf("parsing fetched_at: %w", err)
	}
	if rec.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	return &rec, nil
}

// CachePut upserts a cache record as a full-row overwrite.
func (s *Store) CachePut(ctx context.Context, rec types.CacheRecord) error {
	return upsertCache(ctx, s.db, rec)
}

// SweepCache deletes rows whose expiry is at or before now and reports
// how many were removed.
func (s *Store) SweepCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at <= ?`, now.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("sweeping cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheStats reports total and live row counts at the given time.
func (s *Store) CacheStats(ctx context.Context, now time.Time) (total, live int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM query_cache`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("counting cache rows: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM query_cache WHERE expires_at > ?`,
		now.UTC().Format(timeFormat)).Scan(&live)
	if err != nil {
		return 0, 0, fmt.Errorf("counting live cache rows: %w", err)
	}
	return total, live, nil
}
