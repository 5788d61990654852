package ratelimit

import (
	"sync"
	"time"
)

// bucket holds the quota state for one server-assigned rate-limit bucket.
// Each bucket carries its own mutex so unrelated routes never serialize on
// each other; the Limiter's map lock is never held while a bucket lock is.
type bucket struct {
	mu sync.Mutex

	// key is the server bucket id once known, or the synthetic route key
	// until the first response reveals one.
	key string

	limit     int
	remaining int
	resetAt   time.Time
	window    time.Duration
	updatedAt time.Time
}

func newBucket(key string, limit int) *bucket {
	return &bucket{
		key:       key,
		limit:     limit,
		remaining: limit,
	}
}

// reserve attempts to consume one unit of quota at the given instant. It
// returns zero when the caller may proceed, otherwise the duration the
// caller must wait before trying again.
func (b *bucket) reserve(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.replenish(now)

	if b.remaining <= 0 && now.Before(b.resetAt) {
		return b.resetAt.Sub(now)
	}

	b.remaining--
	return 0
}

// replenish restores the window exactly once after it expires. The reset
// instant is pushed forward by the last observed window size so a burst of
// calls arriving after expiry cannot restore the quota more than once.
func (b *bucket) replenish(now time.Time) {
	if b.resetAt.IsZero() || now.Before(b.resetAt) {
		return
	}
	b.remaining = b.limit
	if b.window > 0 {
		b.resetAt = now.Add(b.window)
	} else {
		b.resetAt = time.Time{}
	}
}

// update applies quota metadata from a regular response. A 429 recorded at
// the same time wins: exhaust is authoritative and sets remaining to zero,
// so update never raises remaining above what an exhaust left behind while
// the exhaust window is still open.
func (b *bucket) update(now time.Time, limit, remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit > 0 {
		b.limit = limit
	}
	if b.remaining == 0 && now.Before(b.resetAt) && resetAt.Before(b.resetAt) {
		// An explicit retry-after pushed the reset further out than this
		// header predicts; keep the authoritative window.
		b.updatedAt = now
		return
	}

	b.remaining = remaining
	b.resetAt = resetAt
	if w := resetAt.Sub(now); w > 0 {
		b.window = w
	}
	b.updatedAt = now
}

// exhaust forces the bucket empty until now+retryAfter, as told by a 429.
func (b *bucket) exhaust(now time.Time, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remaining = 0
	b.resetAt = now.Add(retryAfter)
	b.updatedAt = now
}

// snapshot returns a consistent view of the bucket's quota fields.
func (b *bucket) snapshot(now time.Time) BucketStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	resetIn := b.resetAt.Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}
	return BucketStats{
		Key:       b.key,
		Limit:     b.limit,
		Remaining: b.remaining,
		ResetIn:   resetIn,
	}
}

// stale reports whether the bucket has been idle past maxAge with no open
// window, making it safe to sweep.
func (b *bucket) stale(now time.Time, maxAge time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.After(b.resetAt) && !b.updatedAt.IsZero() && now.Sub(b.updatedAt) > maxAge
}
