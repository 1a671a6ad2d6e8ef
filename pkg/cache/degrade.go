package cache

import (
	"log/slog"
	"time"
)

// degradeToMiss wraps a Cache so every failure is logged and reported as a
// miss or no-op. Callers stay correct with the cache unreachable; only Ping
// still surfaces errors so health checks can observe the outage.
type degradeToMiss struct {
	inner Cache
}

// DegradeToMiss returns a Cache that never propagates errors.
func DegradeToMiss(inner Cache) Cache {
	return &degradeToMiss{inner: inner}
}

func (d *degradeToMiss) Set(key string, value any, ttl time.Duration) error {
	if err := d.inner.Set(key, value, ttl); err != nil {
		slog.Warn("cache set failed", "key", key, "err", err)
	}
	return nil
}

func (d *degradeToMiss) Get(key string, out any) (bool, error) {
	hit, err := d.inner.Get(key, out)
	if err != nil {
		slog.Warn("cache get failed", "key", key, "err", err)
		return false, nil
	}
	return hit, nil
}

func (d *degradeToMiss) Delete(keys ...string) error {
	if err := d.inner.Delete(keys...); err != nil {
		slog.Warn("cache delete failed", "keys", keys, "err", err)
	}
	return nil
}

func (d *degradeToMiss) DeleteByPattern(pattern string) (int, error) {
	n, err := d.inner.DeleteByPattern(pattern)
	if err != nil {
		slog.Warn("cache pattern delete failed", "pattern", pattern, "err", err)
		return n, nil
	}
	return n, nil
}

func (d *degradeToMiss) Exists(key string) (bool, error) {
	ok, err := d.inner.Exists(key)
	if err != nil {
		slog.Warn("cache exists failed", "key", key, "err", err)
		return false, nil
	}
	return ok, nil
}

func (d *degradeToMiss) Increment(key string, window time.Duration) (int64, error) {
	n, err := d.inner.Increment(key, window)
	if err != nil {
		slog.Warn("cache increment failed", "key", key, "err", err)
		return 0, nil
	}
	return n, nil
}

func (d *degradeToMiss) Ping() error {
	return d.inner.Ping()
}
