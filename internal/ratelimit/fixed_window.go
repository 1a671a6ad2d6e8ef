// Package ratelimit throttles requests per key over a fixed time window.
package ratelimit

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"bookshelf/pkg/cache"
)

// FixedWindowLimiter counts requests per key in the shared cache. The
// window starts at the first request for a key and resets when the
// counter expires.
type FixedWindowLimiter struct {
	cache  cache.Cache
	limit  int64
	window time.Duration
}

// NewFixedWindowLimiter creates a limiter backed by the shared cache.
func NewFixedWindowLimiter(c cache.Cache, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if c == nil {
		return nil, errors.New("rate limiter requires a cache")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &FixedWindowLimiter{cache: c, limit: int64(limit), window: window}, nil
}

// Allow returns true when the key is within quota. When the cache is
// unavailable the limiter fails open so auth endpoints stay reachable.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	count, err := l.cache.Increment(cache.RateLimitKey(key), l.window)
	if err != nil {
		slog.Warn("rate limiter cache unavailable, allowing request", "key", key, "error", err)
		return true
	}
	return count <= l.limit
}
