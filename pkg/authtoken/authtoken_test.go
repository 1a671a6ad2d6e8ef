package authtoken

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookshelf/pkg/cache"
)

func newTestManager(t *testing.T, accessTTL, refreshTTL time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	redis := miniredis.RunT(t)
	c := cache.NewRedisCache(redis.Addr(), "")
	return NewManager("access-secret", "refresh-secret", accessTTL, refreshTTL, c), redis
}

func TestIssueAndVerifyPair(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, time.Hour)

	pair, err := m.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	uid, err := m.VerifyAccess(pair.AccessToken)
	if err != nil || uid != "user-1" {
		t.Fatalf("verify access: uid=%q err=%v", uid, err)
	}
	uid, err = m.VerifyRefresh(pair.RefreshToken)
	if err != nil || uid != "user-1" {
		t.Fatalf("verify refresh: uid=%q err=%v", uid, err)
	}
}

func TestTokenClassesAreNotInterchangeable(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, time.Hour)

	pair, err := m.IssuePair("user-2")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := m.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not pass access verification, got: %v", err)
	}
	if _, err := m.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not pass refresh verification, got: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, time.Hour)
	other := NewManager("other-a", "other-r", time.Minute, time.Hour, m.cache)

	pair, err := other.IssuePair("user-3")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := m.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature rejection, got: %v", err)
	}
}

func TestIssuePairTokensAreUnique(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, time.Hour)

	first, err := m.IssuePair("user-6")
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := m.IssuePair("user-6")
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if first.AccessToken == second.AccessToken {
		t.Fatalf("same-second access tokens must differ")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatalf("same-second refresh tokens must differ")
	}

	// Rotation depends on this: revoking the old refresh token must leave
	// the one issued moments later usable.
	if err := m.Blacklist(first.RefreshToken); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if uid, err := m.VerifyRefresh(second.RefreshToken); err != nil || uid != "user-6" {
		t.Fatalf("fresh refresh token must survive revoking the old one: uid=%q err=%v", uid, err)
	}
}

func TestBlacklistRevokesUntilExpiry(t *testing.T) {
	m, redis := newTestManager(t, time.Minute, time.Hour)

	pair, err := m.IssuePair("user-4")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if err := m.Blacklist(pair.AccessToken); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, err := m.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected blacklisted token to fail, got: %v", err)
	}

	// The blacklist entry must not outlive the token itself.
	ttl := redis.TTL("blacklist:" + pair.AccessToken)
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected blacklist ttl: %v", ttl)
	}
}

func TestBlacklistExpiredTokenIsNoop(t *testing.T) {
	m, redis := newTestManager(t, time.Minute, time.Hour)

	expired, err := m.sign("user-5", typeAccess, m.accessSecret, -time.Minute)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if err := m.Blacklist(expired); err != nil {
		t.Fatalf("blacklist expired: %v", err)
	}
	if redis.Exists("blacklist:" + expired) {
		t.Fatalf("expired token needs no blacklist entry")
	}
	if _, err := m.VerifyAccess(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must fail verification, got: %v", err)
	}
}
