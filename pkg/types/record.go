// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the biblio-gateway
// pipeline: normalized bibliographic records, query results, cache rows,
// and the configuration threaded through every component.
package types

import "time"

// Record is one normalized bibliographic entry returned by a query.
// It is constructed fresh on every successful remote fetch and never
// mutated in place; a later fetch of the same article produces a new
// value that is upserted over the old row keyed by ID.
type Record struct {
	// ID is the stable identity: the upstream native id when present,
	// else the DOI, else a 16-hex-character content fingerprint.
	ID string `json:"id" yaml:"id"`

	// Title is the article title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the article authors in source order. Never nil.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the four-digit publication year, empty when unknown.
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// Publisher is the journal or publisher name, empty when unknown.
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`

	// URL is the article landing or preview URL, empty when unknown.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Keywords lists source-assigned keywords. Never nil.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Abstract is nil when the source omits it, which is distinct from
	// an article whose abstract is the empty string.
	Abstract *string `json:"abstract" yaml:"abstract"`

	// Raw is the original per-item structure, retained verbatim for
	// downstream consumers that need fields the normalizer does not
	// surface (citation formatting, detail views).
	Raw map[string]any `json:"raw_json" yaml:"raw_json"`
}

// ResponseStatus mirrors the status block of the upstream response.
type ResponseStatus struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// ResponseMeta carries response-level metadata parsed out of the payload.
type ResponseMeta struct {
	// Total is the source-reported total match count, nil when absent.
	Total *int `json:"total" yaml:"total"`

	// Status is the upstream status block, nil when absent.
	Status *ResponseStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// QueryResult is the value a query produces: the normalized records, the
// full parsed response tree, and response metadata. This exact value is
// memoized by the cache and returned on both cache hit and miss.
type QueryResult struct {
	Items []Record       `json:"items" yaml:"items"`
	Raw   map[string]any `json:"raw_json" yaml:"raw_json"`
	Meta  ResponseMeta   `json:"meta" yaml:"meta"`
}

// Request holds the parameters of one logical query.
type Request struct {
	// Tool names the caller-facing operation (e.g. "article_search");
	// it partitions the cache between tools with identical parameters.
	Tool string `json:"tool" yaml:"tool"`

	// Target selects the upstream collection to search.
	Target string `json:"target" yaml:"target"`

	// Params are the search parameters forwarded upstream.
	Params map[string]string `json:"params" yaml:"params"`

	// Page and PageCount control paging. Zero values take the defaults
	// (page 1, 10 records per page) for both the request and the cache key.
	Page      int `json:"page,omitempty" yaml:"page,omitempty"`
	PageCount int `json:"page_count,omitempty" yaml:"page_count,omitempty"`

	// Refresh bypasses the cache read; the fresh result still overwrites
	// the cache entry.
	Refresh bool `json:"refresh,omitempty" yaml:"refresh,omitempty"`

	// APIKey overrides the configured credential for this call only.
	APIKey string `json:"-" yaml:"-"`
}

// CacheRecord is one row of the query cache.
type CacheRecord struct {
	// CacheKey is the canonical request fingerprint (primary key).
	CacheKey string

	// Tool and ParamsJSON record what produced the row, for inspection.
	Tool       string
	ParamsJSON string

	// ResultJSON is the serialized QueryResult.
	ResultJSON string

	FetchedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r CacheRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
