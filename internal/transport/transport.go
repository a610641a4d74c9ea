// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transport issues HTTP GET requests against the upstream
// bibliographic search API. It decodes non-UTF8 payloads, retries
// timeouts and 5xx responses with exponential backoff, and fails fast on
// every other error. Retry state is scoped to a single Fetch call; the
// transport holds no cross-request state.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/pdiddy/biblio-gateway/internal/metrics"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

const (
	defaultBaseURL     = "https://open.kci.go.kr/po/openapi/openApiSearch.kci"
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	defaultUserAgent   = "biblio-gateway/0.1"
)

// Response is the decoded result of one successful fetch. Body is always
// UTF-8 text regardless of the declared response charset.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   string
}

// Client fetches from the upstream search endpoint.
type Client struct {
	http *http.Client
	cfg  types.TransportConfig
	log  zerolog.Logger
}

// New constructs a Client from cfg, applying defaults for zero fields.
// The underlying http.Client carries no global timeout; each attempt is
// bounded by its own context deadline so attempts cancel independently.
func New(cfg types.TransportConfig, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Client{http: &http.Client{}, cfg: cfg, log: log}
}

// Fetch issues one logical GET with params appended to the base URL.
// Parameters with empty values are omitted, not serialized as empty.
// Timeouts and 5xx responses are retried with exponential backoff
// (baseBackoff · 2^attempt) up to MaxRetries extra attempts; any other
// failure, including 4xx, propagates immediately. Exhausting retries
// returns the last observed error.
func (c *Client) Fetch(ctx context.Context, params map[string]string) (*Response, error) {
	reqURL := buildURL(c.cfg.BaseURL, params)

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, reqURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// A cancelled caller does not retry further.
		if ctx.Err() != nil {
			return nil, lastErr
		}

		cause, retryable := classify(err)
		if !retryable || attempt >= c.cfg.MaxRetries {
			return nil, lastErr
		}

		backoff := c.cfg.BaseBackoff * (1 << attempt)
		metrics.TransportRetries.WithLabelValues(cause).Inc()
		c.log.Debug().
			Str("cause", cause).
			Dur("backoff", backoff).
			Int("attempt", attempt+1).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("retrying fetch")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// attempt performs a single request bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, reqURL string) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused across retries.
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, URL: reqURL}
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	return &Response{
		URL:    reqURL,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// decodeBody reads the response body, transcoding to UTF-8 when the
// Content-Type declares a different charset. An unspecified charset is
// treated as UTF-8.
func decodeBody(resp *http.Response) (string, error) {
	charset := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			charset = strings.ToLower(params["charset"])
		}
	}

	reader := io.Reader(resp.Body)
	if charset != "" && charset != "utf-8" && charset != "utf8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		reader = enc.NewDecoder().Reader(resp.Body)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	return string(body), nil
}

// buildURL appends every non-empty parameter to the base URL.
func buildURL(base string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	if len(values) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + values.Encode()
}

// classify names the retry cause of err and reports whether it is
// retryable: per-attempt timeouts and 5xx responses are, nothing else is.
func classify(err error) (string, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Status >= 500 {
			return "server_error", true
		}
		return "client_error", false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", true
	}
	return "network", false
}
