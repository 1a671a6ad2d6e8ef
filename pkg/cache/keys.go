package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Key prefixes and TTLs for entity caching. List-query entries churn faster
// than single entities, so they carry a shorter TTL.
const (
	BookTTL      = 600 * time.Second
	BookListTTL  = 300 * time.Second
	UserTTL      = 600 * time.Second
	SessionTTL   = 24 * time.Hour
	StatsTTL     = 600 * time.Second
	RateLimitTTL = 900 * time.Second
)

const (
	bookPrefix         = "book:"
	bookListPrefix     = "books:list:"
	userPrefix         = "user:"
	sessionPrefix      = "session:"
	userSessionsPrefix = "user_sessions:"
	statsPrefix        = "stats:"
	rateLimitPrefix    = "ratelimit:"
	blacklistPrefix    = "blacklist:"
)

// BookListPattern matches every cached book list query.
const BookListPattern = bookListPrefix + "*"

// StatsPattern matches every cached aggregate.
const StatsPattern = statsPrefix + "*"

func BookKey(id string) string { return bookPrefix + id }

// BookListKey derives a stable key from the canonicalized query tuple.
func BookListKey(query any) string {
	data, err := json.Marshal(query)
	if err != nil {
		return bookListPrefix + "invalid"
	}
	sum := sha1.Sum(data)
	return bookListPrefix + hex.EncodeToString(sum[:])
}

func UserKey(id string) string { return userPrefix + id }

func SessionKey(id string) string { return sessionPrefix + id }

func UserSessionsKey(userID string) string { return userSessionsPrefix + userID }

func StatsKey(name string) string { return statsPrefix + name }

func RateLimitKey(identifier string) string { return rateLimitPrefix + identifier }

func BlacklistKey(token string) string { return blacklistPrefix + token }
