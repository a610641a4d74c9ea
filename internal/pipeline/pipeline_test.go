// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/biblio-gateway/internal/ratelimit"
	"github.com/pdiddy/biblio-gateway/internal/store"
	"github.com/pdiddy/biblio-gateway/internal/transport"
	"github.com/pdiddy/biblio-gateway/internal/xmltree"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

const responseXML = `<response>
	<status><code>0</code><message>OK</message></status>
	<result>
		<total>1</total>
		<items>
			<item>
				<id>ART-1</id>
				<title>Cached Paper</title>
				<authors><author>Kim</author></authors>
				<publisher>KISS</publisher>
				<pub_date>2022-01-01</pub_date>
			</item>
		</items>
	</result>
</response>`

// testPipeline builds a pipeline against the given server with a
// generous rate limit.
func testPipeline(t *testing.T, serverURL string) *Pipeline {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := types.Config{
		APIKey: "default-key",
		Transport: types.TransportConfig{
			BaseURL:     serverURL,
			MaxRetries:  1,
			BaseBackoff: time.Millisecond,
		},
		RateLimit: types.RateLimitConfig{Limit: 100, Window: time.Second, MaxQueueDelay: time.Second},
	}
	return New(
		st,
		transport.New(cfg.Transport, zerolog.Nop()),
		ratelimit.New(cfg.RateLimit, zerolog.Nop()),
		cfg,
		zerolog.Nop(),
	)
}

func testRequest() types.Request {
	return types.Request{
		Tool:   "article_search",
		Target: "article",
		Params: map[string]string{"query": "graph neural networks"},
	}
}

func TestCacheTransparency(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()

	first, err := p.Run(ctx, testRequest())
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	second, err := p.Run(ctx, testRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call must hit the cache")
	assert.Equal(t, first, second, "cached result must be deep-equal to the fresh one")
}

func TestParamOrderSharesCacheEntry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()

	req := testRequest()
	req.Params = map[string]string{"query": "ml", "author": "kim"}
	_, err := p.Run(ctx, req)
	require.NoError(t, err)

	// Same logical request; map ordering cannot matter, and explicit
	// default paging collides with implicit.
	req2 := testRequest()
	req2.Params = map[string]string{"author": "kim", "query": "ml"}
	req2.Page = store.DefaultPage
	req2.PageCount = store.DefaultPageCount
	_, err = p.Run(ctx, req2)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRefreshBypassesCacheRead(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()

	_, err := p.Run(ctx, testRequest())
	require.NoError(t, err)

	req := testRequest()
	req.Refresh = true
	_, err = p.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "refresh must always fetch")

	// The refreshed entry is written back: a plain call hits the cache.
	_, err = p.Run(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExpiredEntryBehavesAsMiss(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()
	req := testRequest()

	// Seed an already-expired cache row under the request's key.
	key := store.CacheKey(req.Tool, req.Target, req.Params, store.DefaultPage, store.DefaultPageCount)
	require.NoError(t, p.store.CachePut(ctx, types.CacheRecord{
		CacheKey:   key,
		Tool:       req.Tool,
		ParamsJSON: "{}",
		ResultJSON: `{"items":[],"raw_json":{},"meta":{"total":null}}`,
		FetchedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt:  time.Now().Add(-24 * time.Hour),
	}))

	result, err := p.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "expired entry must trigger a fetch")
	assert.Len(t, result.Items, 1)
}

func TestAPIKeyOverride(t *testing.T) {
	var gotKeys []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKeys = append(gotKeys, r.URL.Query().Get("key"))
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()

	_, err := p.Run(ctx, testRequest())
	require.NoError(t, err)

	req := testRequest()
	req.Refresh = true
	req.APIKey = "override-key"
	_, err = p.Run(ctx, req)
	require.NoError(t, err)

	require.Len(t, gotKeys, 2)
	assert.Equal(t, "default-key", gotKeys[0])
	assert.Equal(t, "override-key", gotKeys[1])
}

func TestTransportErrorLeavesNoCacheWrite(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()

	_, err := p.Run(ctx, testRequest())
	var se *transport.StatusError
	require.ErrorAs(t, err, &se, "transport errors must propagate unchanged")
	assert.Equal(t, http.StatusNotFound, se.Status)

	total, _, err := p.store.CacheStats(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, total, "a failed fetch must not write a cache row")
}

func TestMalformedResponseLeavesNoCacheWrite(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<response><unclosed></response>"))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	ctx := context.Background()

	_, err := p.Run(ctx, testRequest())
	var pe *xmltree.ParseError
	require.ErrorAs(t, err, &pe)

	total, _, err := p.store.CacheStats(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestRateLimitedErrorPropagates(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := types.Config{
		Transport: types.TransportConfig{BaseURL: ts.URL},
		RateLimit: types.RateLimitConfig{Limit: 1, Window: time.Minute, MaxQueueDelay: 10 * time.Millisecond},
	}
	limiter := ratelimit.New(cfg.RateLimit, zerolog.Nop())
	p := New(st, transport.New(cfg.Transport, zerolog.Nop()), limiter, cfg, zerolog.Nop())

	// Consume the only slot in the window.
	_, err = limiter.Acquire()
	require.NoError(t, err)

	_, err = p.Run(context.Background(), testRequest())
	var rle *ratelimit.RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "a rejected call must never reach the network")
}

func TestWriteSerialization(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)

	var mu sync.Mutex
	var events []string
	p.persistHook = func(event string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
		if event == "enter" {
			// Widen the window in which an interleaving write would be
			// observable.
			time.Sleep(5 * time.Millisecond)
		}
	}

	var wg sync.WaitGroup
	for _, q := range []string{"first query", "second query"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			req := testRequest()
			req.Params = map[string]string{"query": q}
			_, err := p.Run(context.Background(), req)
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	require.Equal(t, 4, len(events))
	assert.Equal(t, []string{"enter", "exit", "enter", "exit"}, events,
		"persistence sections must not interleave")

	// Both cache rows and the shared article row persisted.
	total, live, err := p.store.CacheStats(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, live)
}

func TestResultFileRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(responseXML))
	}))
	defer ts.Close()

	p := testPipeline(t, ts.URL)
	req := testRequest()
	result, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "result.yaml")
	require.NoError(t, WriteResultFile(path, req, result))

	rf, err := ReadResultFile(path)
	require.NoError(t, err)
	assert.Equal(t, req.Params, rf.Request.Params)
	require.Len(t, rf.Items, 1)
	assert.Equal(t, "ART-1", rf.Items[0].ID)
	assert.Equal(t, 1, rf.Summary.Items)
}
