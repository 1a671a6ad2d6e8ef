// Package authtoken issues and verifies the stateless JWT access/refresh
// pair. Revocation is a blacklist entry in the cache layer whose TTL equals
// the token's remaining lifetime, so the blacklist never outgrows the set of
// still-live tokens.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bookshelf/pkg/cache"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// ErrInvalidToken covers bad signature, expiry, wrong class, and blacklisted
// tokens alike. Callers must not distinguish the cases to end users.
var ErrInvalidToken = errors.New("invalid or expired token")

// Pair is a freshly issued access/refresh token set.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Manager signs and verifies token pairs with distinct per-class secrets.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	cache         cache.Cache
}

// NewManager builds a token manager. TTLs default to 15m access / 7d refresh.
func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, c cache.Cache) *Manager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		cache:         c,
	}
}

// IssuePair signs a new access/refresh pair for the user.
func (m *Manager) IssuePair(userID string) (Pair, error) {
	access, err := m.sign(userID, typeAccess, m.accessSecret, m.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(userID, typeRefresh, m.refreshSecret, m.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) sign(userID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	// The jti keeps same-second tokens distinct, so blacklisting an old
	// token by its exact string can never shadow a freshly issued one.
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": tokenType,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access token and returns the user id.
func (m *Manager) VerifyAccess(token string) (string, error) {
	return m.verify(token, typeAccess, m.accessSecret)
}

// VerifyRefresh validates a refresh token and returns the user id.
func (m *Manager) VerifyRefresh(token string) (string, error) {
	return m.verify(token, typeRefresh, m.refreshSecret)
}

func (m *Manager) verify(raw, tokenType string, secret []byte) (string, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != tokenType {
		return "", ErrInvalidToken
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", ErrInvalidToken
	}
	if revoked, _ := m.cache.Exists(cache.BlacklistKey(raw)); revoked {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// Blacklist marks the exact token string revoked until its natural expiry.
// An already-expired or undecodable token is a no-op.
func (m *Manager) Blacklist(raw string) error {
	if raw == "" {
		return nil
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	ttl := time.Until(exp.Time)
	if ttl <= 0 {
		return nil
	}
	return m.cache.Set(cache.BlacklistKey(raw), "1", ttl)
}
