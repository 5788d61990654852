// Package ratelimit implements the shared admission gate protecting the REST
// surface: a fixed global request window plus per-route buckets discovered
// dynamically from server response metadata. Bucket ids are assigned by the
// server and may span several routes; until a route reveals its id, state is
// tracked under a synthetic key derived from the normalized route template.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scope names which quota rejected a request.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeBucket Scope = "bucket"
)

// RateLimitError reports an exhausted quota together with the concrete wait
// required before the request can be retried.
type RateLimitError struct {
	Scope      Scope
	Bucket     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Scope == ScopeGlobal {
		return fmt.Sprintf("rate limited globally, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited on bucket %s, retry after %s", e.Bucket, e.RetryAfter)
}

// Config is the limiter's externally supplied tuning surface.
type Config struct {
	// GlobalLimit and GlobalWindow define the process-wide request quota.
	GlobalLimit  int
	GlobalWindow time.Duration

	// DefaultBucketLimit seeds a bucket discovered through a 429 before any
	// response headers described it.
	DefaultBucketLimit int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *zap.Logger
}

// Limiter is the process-wide admission gate. Global quota state sits behind
// its own mutex and every bucket behind its own; the global lock and a bucket
// lock are never held together, so unrelated routes do not serialize on each
// other and no lock-ordering cycle can form.
type Limiter struct {
	cfg Config
	log *zap.Logger

	globalMu        sync.Mutex
	globalRemaining int
	globalResetAt   time.Time

	mu      sync.RWMutex
	buckets map[string]*bucket // keyed by bucket id or synthetic route key
	routes  map[string]string  // synthetic route key -> server bucket id
}

// New builds a Limiter, filling unset config fields with defaults
// (50 requests per second globally, fallback bucket limit 1).
func New(cfg Config) *Limiter {
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = 50
	}
	if cfg.GlobalWindow <= 0 {
		cfg.GlobalWindow = time.Second
	}
	if cfg.DefaultBucketLimit <= 0 {
		cfg.DefaultBucketLimit = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Limiter{
		cfg:             cfg,
		log:             cfg.Logger,
		globalRemaining: cfg.GlobalLimit,
		buckets:         make(map[string]*bucket),
		routes:          make(map[string]string),
	}
}

func (l *Limiter) now() time.Time {
	return l.cfg.Clock()
}

// Wait blocks until the route may proceed under both the global quota and the
// route's bucket, or until ctx is cancelled. The global quota is consumed
// first: a caller blocked globally has not yet touched its bucket.
func (l *Limiter) Wait(ctx context.Context, route Route) error {
	for {
		wait := l.reserveGlobal(l.now())
		if wait == 0 {
			break
		}
		l.log.Debug("waiting on global rate limit",
			zap.Duration("wait", wait),
			zap.String("route", route.Key()),
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	b := l.lookup(route)
	if b == nil {
		return nil
	}
	for {
		wait := b.reserve(l.now())
		if wait == 0 {
			return nil
		}
		l.log.Debug("waiting on bucket rate limit",
			zap.Duration("wait", wait),
			zap.String("bucket", b.key),
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Allow is the non-blocking variant of Wait. When a quota is exhausted it
// returns a *RateLimitError naming the scope and the concrete wait instead of
// sleeping. The global quota is not consumed unless both checks pass the
// global one first, matching Wait's ordering.
func (l *Limiter) Allow(route Route) error {
	if wait := l.reserveGlobal(l.now()); wait > 0 {
		return &RateLimitError{Scope: ScopeGlobal, RetryAfter: wait}
	}
	b := l.lookup(route)
	if b == nil {
		return nil
	}
	if wait := b.reserve(l.now()); wait > 0 {
		return &RateLimitError{Scope: ScopeBucket, Bucket: b.key, RetryAfter: wait}
	}
	return nil
}

// reserveGlobal consumes one unit of the global window, returning the wait
// required when the window is exhausted.
func (l *Limiter) reserveGlobal(now time.Time) time.Duration {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()

	if !l.globalResetAt.IsZero() && !now.Before(l.globalResetAt) {
		l.globalRemaining = l.cfg.GlobalLimit
		l.globalResetAt = time.Time{}
	}

	if l.globalRemaining <= 0 && now.Before(l.globalResetAt) {
		return l.globalResetAt.Sub(now)
	}

	if l.globalResetAt.IsZero() {
		l.globalResetAt = now.Add(l.cfg.GlobalWindow)
	}
	l.globalRemaining--
	return 0
}

// lookup resolves the bucket currently tracking a route, following the
// route's alias to its server bucket id once one has been observed. Routes
// with no recorded state yet are only subject to the global quota.
func (l *Limiter) lookup(route Route) *bucket {
	key := route.Key()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if id, ok := l.routes[key]; ok {
		key = id
	}
	return l.buckets[key]
}

// ResponseInfo is the rate-limit metadata carried by one REST response,
// normalized at the boundary: the reset instant is always absolute here even
// when the server expressed it as a relative seconds-from-now delta.
type ResponseInfo struct {
	Bucket    string
	Limit     int
	Remaining int
	ResetAt   time.Time
	Global    bool
}

// ParseHeaders extracts rate-limit metadata from response headers. The
// second return is false when the response carried no bucket information.
// A relative reset-after header takes precedence over the absolute epoch
// form since it is immune to clock skew against the server.
func ParseHeaders(h http.Header, now time.Time) (ResponseInfo, bool) {
	info := ResponseInfo{
		Bucket: h.Get("X-RateLimit-Bucket"),
		Global: h.Get("X-RateLimit-Global") == "true",
	}

	found := info.Bucket != ""
	if v := h.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Limit = n
			found = true
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
			found = true
		}
	}
	if v := h.Get("X-RateLimit-Reset-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			info.ResetAt = now.Add(time.Duration(secs * float64(time.Second)))
			found = true
		}
	} else if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseFloat(v, 64); err == nil {
			info.ResetAt = time.Unix(0, int64(epoch*float64(time.Second)))
			found = true
		}
	}

	return info, found
}

// UpdateFromResponse folds one response's quota metadata into the store. When
// the response names a bucket id for the first time, future lookups for the
// route are remapped from its synthetic key to that id; ids are stable once
// observed.
func (l *Limiter) UpdateFromResponse(route Route, info ResponseInfo) {
	key := route.Key()

	l.mu.Lock()
	if info.Bucket != "" && l.routes[key] != info.Bucket {
		l.routes[key] = info.Bucket
		// Migrate any synthetic state so the alias does not leak a bucket.
		if syn, ok := l.buckets[key]; ok {
			delete(l.buckets, key)
			if _, exists := l.buckets[info.Bucket]; !exists {
				syn.mu.Lock()
				syn.key = info.Bucket
				syn.mu.Unlock()
				l.buckets[info.Bucket] = syn
			}
		}
	}
	canonical := key
	if id, ok := l.routes[key]; ok {
		canonical = id
	}
	b, ok := l.buckets[canonical]
	if !ok {
		b = newBucket(canonical, l.cfg.DefaultBucketLimit)
		l.buckets[canonical] = b
	}
	l.mu.Unlock()

	if !info.ResetAt.IsZero() {
		b.update(l.now(), info.Limit, info.Remaining, info.ResetAt)
	}
}

// RecordTooManyRequests applies a 429, which is authoritative over any
// locally predicted window: the relevant quota is forced empty until
// now+retryAfter. The returned error names the scope and exact wait so a
// retrying caller can back off precisely.
func (l *Limiter) RecordTooManyRequests(route Route, retryAfter time.Duration, global bool) *RateLimitError {
	now := l.now()

	if global {
		l.globalMu.Lock()
		l.globalRemaining = 0
		l.globalResetAt = now.Add(retryAfter)
		l.globalMu.Unlock()

		l.log.Warn("global rate limit hit",
			zap.Duration("retry_after", retryAfter),
			zap.String("route", route.Key()),
		)
		return &RateLimitError{Scope: ScopeGlobal, RetryAfter: retryAfter}
	}

	key := route.Key()
	l.mu.Lock()
	if id, ok := l.routes[key]; ok {
		key = id
	}
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(key, l.cfg.DefaultBucketLimit)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.exhaust(now, retryAfter)

	l.log.Warn("bucket rate limit hit",
		zap.String("bucket", key),
		zap.Duration("retry_after", retryAfter),
	)
	return &RateLimitError{Scope: ScopeBucket, Bucket: key, RetryAfter: retryAfter}
}

// Reset clears all bucket state and restores the global quota to full.
// In-flight waiters re-evaluate against the fresh state on their next check.
func (l *Limiter) Reset() {
	l.globalMu.Lock()
	l.globalRemaining = l.cfg.GlobalLimit
	l.globalResetAt = time.Time{}
	l.globalMu.Unlock()

	l.mu.Lock()
	l.buckets = make(map[string]*bucket)
	l.routes = make(map[string]string)
	l.mu.Unlock()
}

// BucketStats is a read-only view of one bucket's quota.
type BucketStats struct {
	Key       string
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Stats describes the limiter's current quota state.
type Stats struct {
	GlobalLimit     int
	GlobalRemaining int
	GlobalResetIn   time.Duration
	Buckets         []BucketStats
}

// Stats returns a snapshot of global and per-bucket quota state without
// mutating anything. Each bucket row is internally consistent; rows across
// buckets are not required to be from one instant.
func (l *Limiter) Stats() Stats {
	now := l.now()

	l.globalMu.Lock()
	s := Stats{
		GlobalLimit:     l.cfg.GlobalLimit,
		GlobalRemaining: l.globalRemaining,
	}
	if now.Before(l.globalResetAt) {
		s.GlobalResetIn = l.globalResetAt.Sub(now)
	}
	l.globalMu.Unlock()

	l.mu.RLock()
	buckets := make([]*bucket, 0, len(l.buckets))
	for _, b := range l.buckets {
		buckets = append(buckets, b)
	}
	l.mu.RUnlock()

	for _, b := range buckets {
		s.Buckets = append(s.Buckets, b.snapshot(now))
	}
	return s
}

// Sweep drops buckets idle for longer than maxAge with no open window,
// bounding memory for long-running processes. Route aliases pointing at a
// swept bucket are dropped with it.
func (l *Limiter) Sweep(maxAge time.Duration) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if !b.stale(now, maxAge) {
			continue
		}
		delete(l.buckets, key)
		removed++
		for route, id := range l.routes {
			if id == key {
				delete(l.routes, route)
			}
		}
	}
	return removed
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
