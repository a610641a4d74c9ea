// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline composes the query execution path: cache lookup,
// rate-limited fetch, normalization, and mutex-serialized persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/biblio-gateway/internal/metrics"
	"github.com/pdiddy/biblio-gateway/internal/normalize"
	"github.com/pdiddy/biblio-gateway/internal/ratelimit"
	"github.com/pdiddy/biblio-gateway/internal/store"
	"github.com/pdiddy/biblio-gateway/internal/syncutil"
	"github.com/pdiddy/biblio-gateway/internal/transport"
	"github.com/pdiddy/biblio-gateway/internal/xmltree"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

const (
	defaultTool    = "article_search"
	defaultTTLDays = 7
)

// Pipeline executes logical queries against the upstream API with
// cache-aside memoization. Concurrent Run calls may fetch in parallel;
// their persistence steps serialize through a FIFO write mutex so writes
// to the shared storage connection never interleave.
type Pipeline struct {
	store     *store.Store
	transport *transport.Client
	limiter   *ratelimit.Limiter
	writeMu   *syncutil.FIFOMutex
	apiKey    string
	ttl       time.Duration
	log       zerolog.Logger

	// persistHook observes entry and exit of the exclusive persistence
	// section. Tests use it to verify write serialization.
	persistHook func(event string)
}

// New assembles a Pipeline. Each Pipeline owns an independent write
// mutex; multiple pipelines in one process do not contend with each
// other.
func New(st *store.Store, tc *transport.Client, rl *ratelimit.Limiter, cfg types.Config, log zerolog.Logger) *Pipeline {
	ttlDays := cfg.Cache.TTLDays
	if ttlDays <= 0 {
		ttlDays = defaultTTLDays
	}
	return &Pipeline{
		store:     st,
		transport: tc,
		limiter:   rl,
		writeMu:   &syncutil.FIFOMutex{},
		apiKey:    cfg.APIKey,
		ttl:       time.Duration(ttlDays) * 24 * time.Hour,
		log:       log,
	}
}

// Run executes one logical query. Unless req.Refresh is set, a live
// cache entry short-circuits the call with zero network traffic; refresh
// always fetches and overwrites the cache entry. Transport, rate-limit,
// parse, and storage failures propagate unchanged, and a failed call
// never leaves a partial cache write behind.
func (p *Pipeline) Run(ctx context.Context, req types.Request) (types.QueryResult, error) {
	start := time.Now()
	result, err := p.run(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.QueryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return result, err
}

func (p *Pipeline) run(ctx context.Context, req types.Request) (types.QueryResult, error) {
	if req.Tool == "" {
		req.Tool = defaultTool
	}
	page := req.Page
	if page <= 0 {
		page = store.DefaultPage
	}
	pageCount := req.PageCount
	if pageCount <= 0 {
		pageCount = store.DefaultPageCount
	}

	key := store.CacheKey(req.Tool, req.Target, req.Params, page, pageCount)

	if !req.Refresh {
		rec, err := p.store.CacheGet(ctx, key)
		if err != nil {
			return types.QueryResult{}, err
		}
		if rec != nil {
			metrics.CacheHits.Inc()
			p.log.Debug().Str("tool", req.Tool).Str("cache_key", key).Msg("cache hit")
			var result types.QueryResult
			if err := json.Unmarshal([]byte(rec.ResultJSON), &result); err != nil {
				return types.QueryResult{}, fmt.Errorf("decoding cached result: %w", err)
			}
			return result, nil
		}
	}
	metrics.CacheMisses.Inc()

	resp, err := p.fetch(ctx, req, page, pageCount)
	if err != nil {
		return types.QueryResult{}, err
	}

	doc, err := xmltree.Parse(resp.Body)
	if err != nil {
		return types.QueryResult{}, err
	}
	result := normalize.Normalize(doc, req.Target)

	if err := p.persist(ctx, key, req, result); err != nil {
		return types.QueryResult{}, err
	}

	p.log.Info().
		Str("tool", req.Tool).
		Str("target", req.Target).
		Int("items", len(result.Items)).
		Msg("query fetched and persisted")
	return result, nil
}

// fetch assembles the outbound parameter set and performs the
// rate-limited transport call. A per-request API key override takes
// precedence over the configured credential.
func (p *Pipeline) fetch(ctx context.Context, req types.Request, page, pageCount int) (*transport.Response, error) {
	outbound := make(map[string]string, len(req.Params)+4)
	for k, v := range req.Params {
		outbound[k] = v
	}
	outbound["target"] = req.Target
	outbound["page"] = strconv.Itoa(page)
	outbound["displayCount"] = strconv.Itoa(pageCount)

	apiKey := p.apiKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}
	outbound["key"] = apiKey

	var resp *transport.Response
	err := p.limiter.Do(ctx, func(ctx context.Context) error {
		r, err := p.transport.Fetch(ctx, outbound)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// persist upserts the normalized records and the cache row in one
// transaction under the write mutex. Expiry is computed at write time.
func (p *Pipeline) persist(ctx context.Context, key string, req types.Request, result types.QueryResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result for cache: %w", err)
	}
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return fmt.Errorf("encoding params for cache: %w", err)
	}

	now := time.Now()
	rec := types.CacheRecord{
		CacheKey:   key,
		Tool:       req.Tool,
		ParamsJSON: string(paramsJSON),
		ResultJSON: string(resultJSON),
		FetchedAt:  now,
		ExpiresAt:  now.Add(p.ttl),
	}

	return p.writeMu.RunExclusive(func() error {
		if p.persistHook != nil {
			p.persistHook("enter")
			defer p.persistHook("exit")
		}
		return p.store.SaveQueryResult(ctx, result.Items, rec)
	})
}
