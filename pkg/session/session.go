// Package session tracks logged-in sessions in the cache layer, with a
// per-user index so all of a user's sessions can be revoked at once.
package session

import (
	"time"

	"github.com/google/uuid"

	"bookshelf/pkg/cache"
	"bookshelf/pkg/domain"
)

// Data is the denormalized snapshot stored per session.
type Data struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
}

// Manager stores sessions with a fixed TTL. A session past its TTL simply
// disappears; callers treat expired and absent identically.
type Manager struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewManager builds a session manager on top of the cache layer.
func NewManager(c cache.Cache) *Manager {
	return &Manager{cache: c, ttl: cache.SessionTTL}
}

// Create stores a new session and appends its id to the user's session list.
func (m *Manager) Create(user domain.User, ip, userAgent string) (string, error) {
	now := time.Now().UTC()
	data := Data{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    now,
		LastActivity: now,
		IP:           ip,
		UserAgent:    userAgent,
	}
	if err := m.cache.Set(cache.SessionKey(data.ID), data, m.ttl); err != nil {
		return "", err
	}

	var ids []string
	_, _ = m.cache.Get(cache.UserSessionsKey(user.ID), &ids)
	ids = append(ids, data.ID)
	// The list TTL is re-applied on every append so it outlives none of its
	// member sessions by more than the session TTL itself.
	if err := m.cache.Set(cache.UserSessionsKey(user.ID), ids, m.ttl); err != nil {
		return "", err
	}
	return data.ID, nil
}

// Get resolves a session id. Returns false for absent or expired sessions.
func (m *Manager) Get(sessionID string) (Data, bool) {
	var data Data
	hit, err := m.cache.Get(cache.SessionKey(sessionID), &data)
	if err != nil || !hit {
		return Data{}, false
	}
	return data, true
}

// Touch refreshes lastActivity and re-applies the full TTL.
func (m *Manager) Touch(sessionID string) bool {
	data, ok := m.Get(sessionID)
	if !ok {
		return false
	}
	data.LastActivity = time.Now().UTC()
	return m.cache.Set(cache.SessionKey(sessionID), data, m.ttl) == nil
}

// Destroy removes a session and detaches it from the owner's session list.
// The list key is deleted outright when it would become empty.
func (m *Manager) Destroy(sessionID string) bool {
	data, ok := m.Get(sessionID)
	if !ok {
		return false
	}
	_ = m.cache.Delete(cache.SessionKey(sessionID))

	var ids []string
	listKey := cache.UserSessionsKey(data.UserID)
	if hit, _ := m.cache.Get(listKey, &ids); !hit {
		return true
	}
	remaining := ids[:0]
	for _, id := range ids {
		if id != sessionID {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		_ = m.cache.Delete(listKey)
		return true
	}
	_ = m.cache.Set(listKey, remaining, m.ttl)
	return true
}

// DestroyAllForUser destroys every session in the user's list and clears the
// list. Returns the number of sessions removed.
func (m *Manager) DestroyAllForUser(userID string) int {
	var ids []string
	listKey := cache.UserSessionsKey(userID)
	hit, err := m.cache.Get(listKey, &ids)
	if err != nil || !hit {
		return 0
	}
	destroyed := 0
	for _, id := range ids {
		if ok, _ := m.cache.Exists(cache.SessionKey(id)); ok {
			destroyed++
		}
		_ = m.cache.Delete(cache.SessionKey(id))
	}
	_ = m.cache.Delete(listKey)
	return destroyed
}
