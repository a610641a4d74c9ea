// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit implements sliding-window admission control for
// outbound API calls. Excess callers are queued FIFO and admitted by a
// drain timer as window slots open; callers whose estimated wait exceeds
// a configured bound are rejected immediately rather than queued.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/biblio-gateway/internal/metrics"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

const (
	defaultLimit         = 30
	defaultWindow        = time.Minute
	defaultMaxQueueDelay = 10 * time.Second
)

// RateLimitedError reports a caller rejected by admission control. The
// caller decides whether to retry later; the limiter never retries
// internally.
type RateLimitedError struct {
	// EstimatedWait is the queue wait that exceeded the bound.
	EstimatedWait time.Duration

	// Limit and Window describe the budget that was exhausted.
	Limit  int
	Window time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: estimated wait %v exceeds bound (budget %d per %v)",
		e.EstimatedWait, e.Limit, e.Window)
}

type waiter struct {
	enqueued time.Time
	admit    chan time.Duration
}

// Limiter admits at most Limit calls within any trailing Window. Each
// Limiter is an independent instance; construct one per pipeline and pass
// it to every call site.
type Limiter struct {
	limit         int
	window        time.Duration
	maxQueueDelay time.Duration
	log           zerolog.Logger

	mu       sync.Mutex
	admitted []time.Time // admission timestamps, oldest first
	queue    []*waiter   // FIFO wait queue
	timer    *time.Timer

	now func() time.Time
}

// New constructs a Limiter from cfg, applying defaults for zero fields
// (30 calls per minute, 10s maximum queue delay).
func New(cfg types.RateLimitConfig, log zerolog.Logger) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxQueueDelay <= 0 {
		cfg.MaxQueueDelay = defaultMaxQueueDelay
	}
	return &Limiter{
		limit:         cfg.Limit,
		window:        cfg.Window,
		maxQueueDelay: cfg.MaxQueueDelay,
		log:           log,
		now:           time.Now,
	}
}

// Acquire claims one admission slot, blocking while queued. It returns
// the time spent queued (zero for immediate admission). Callers whose
// estimated wait exceeds the configured bound fail with
// *RateLimitedError without being queued.
//
// Acquire exposes no cancellation: a queued caller waits until admitted.
// Callers needing a deadline must race Acquire with their own timeout.
func (l *Limiter) Acquire() (time.Duration, error) {
	l.mu.Lock()
	now := l.now()
	l.prune(now)

	if len(l.queue) == 0 && len(l.admitted) < l.limit {
		l.admitted = append(l.admitted, now)
		l.mu.Unlock()
		metrics.RateLimitAdmitted.Inc()
		return 0, nil
	}

	pos := len(l.queue)
	wait := l.estimateWait(pos, now)
	if wait > l.maxQueueDelay {
		l.mu.Unlock()
		metrics.RateLimitRejected.Inc()
		l.log.Warn().
			Dur("estimated_wait", wait).
			Dur("max_queue_delay", l.maxQueueDelay).
			Int("queue_depth", pos).
			Msg("admission rejected")
		return 0, &RateLimitedError{EstimatedWait: wait, Limit: l.limit, Window: l.window}
	}

	w := &waiter{enqueued: now, admit: make(chan time.Duration, 1)}
	l.queue = append(l.queue, w)
	l.scheduleDrainLocked(now)
	l.mu.Unlock()

	queued := <-w.admit
	metrics.RateLimitAdmitted.Inc()
	return queued, nil
}

// Do acquires an admission slot and then runs fn. The slot is consumed
// whether or not fn succeeds; a rejected acquisition returns the
// *RateLimitedError without running fn.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if _, err := l.Acquire(); err != nil {
		return err
	}
	return fn(ctx)
}

// prune drops admission timestamps that have slid out of the window.
// Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admitted) && !l.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[i:]...)
	}
}

// estimateWait predicts how long the caller at queue position pos will
// wait: the time until the admission timestamp that frees a slot for that
// position expires, plus a full window for every multiple of limit
// positions ahead. The estimate is best-effort; the drain timer admits
// from live state. Callers hold l.mu.
func (l *Limiter) estimateWait(pos int, now time.Time) time.Duration {
	var base time.Duration
	if idx := pos % l.limit; idx < len(l.admitted) {
		base = l.admitted[idx].Add(l.window).Sub(now)
		if base < 0 {
			base = 0
		}
	}
	return base + l.window*time.Duration(pos/l.limit)
}

// scheduleDrainLocked (re)arms the drain timer for the next slot-opening
// time. Callers hold l.mu.
func (l *Limiter) scheduleDrainLocked(now time.Time) {
	var d time.Duration
	if len(l.admitted) >= l.limit {
		d = l.admitted[0].Add(l.window).Sub(now)
		if d < 0 {
			d = 0
		}
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(d, l.drain)
		return
	}
	l.timer.Reset(d)
}

// drain prunes expired timestamps, admits as many queued callers as open
// slots allow in FIFO order, and re-arms itself while the queue is
// non-empty.
func (l *Limiter) drain() {
	l.mu.Lock()
	now := l.now()
	l.prune(now)

	for len(l.queue) > 0 && len(l.admitted) < l.limit {
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.admitted = append(l.admitted, now)
		w.admit <- now.Sub(w.enqueued)
	}

	if len(l.queue) > 0 {
		l.scheduleDrainLocked(now)
	}
	l.mu.Unlock()
}
