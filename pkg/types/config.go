// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for components that make network
// requests.
type HTTPConfig struct {
	// Timeout is the per-attempt HTTP request timeout (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "biblio-gateway/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// TransportConfig holds settings for the upstream API transport.
type TransportConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the search endpoint, overridable for tests and mirrors.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// MaxRetries bounds retries on timeout/5xx (default 2, so up to
	// three total attempts).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseBackoff is the first retry delay; each further retry doubles
	// it (default 500ms).
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff"`
}

// RateLimitConfig holds settings for outbound admission control.
type RateLimitConfig struct {
	// Limit is the number of calls admitted per Window (default 30).
	Limit int `json:"limit" yaml:"limit"`

	// Window is the sliding-window span (default 1m).
	Window time.Duration `json:"window" yaml:"window"`

	// MaxQueueDelay is the largest estimated wait a caller will be
	// queued for; longer waits are rejected immediately (default 10s).
	MaxQueueDelay time.Duration `json:"max_queue_delay" yaml:"max_queue_delay"`
}

// CacheConfig holds settings for the query cache.
type CacheConfig struct {
	// TTLDays is the cache entry lifetime in days (default 7).
	TTLDays int `json:"ttl_days" yaml:"ttl_days"`
}

// Config groups all pipeline configuration. It is assembled once at
// process start and threaded through constructors; components never read
// ambient environment state directly.
type Config struct {
	// APIKey is the default upstream credential. A per-request override
	// takes precedence.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// DBPath locates the sqlite database file.
	DBPath string `json:"db_path" yaml:"db_path"`

	Transport TransportConfig `json:"transport" yaml:"transport"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
}
