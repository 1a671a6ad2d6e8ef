package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and implements the
// same contract as GormStore, including atomic token consumption.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]domain.User
	email  map[string]string // email -> user ID
	books  map[string]domain.Book
	order  []string // book insertion order
	tokens map[string]domain.VerificationToken
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]domain.User),
		email:  make(map[string]string),
		books:  make(map[string]domain.Book),
		tokens: make(map[string]domain.VerificationToken),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping() error { return nil }

// CreateUser registers a user, enforcing email uniqueness. Timestamps
// are stamped here when zero, matching the SQL store's behavior.
func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[u.Email]; exists {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByEmail returns a user by (lowercased) email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) mutateUser(id string, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

// UpdateUserName renames a user.
func (m *MemoryStore) UpdateUserName(id, name string) error {
	return m.mutateUser(id, func(u *domain.User) { u.Name = name })
}

// SetUserPassword replaces the stored password hash.
func (m *MemoryStore) SetUserPassword(id, passwordHash string) error {
	return m.mutateUser(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

// MarkEmailVerified sets the verification timestamp at most once.
func (m *MemoryStore) MarkEmailVerified(id string) (domain.User, error) {
	err := m.mutateUser(id, func(u *domain.User) {
		if u.EmailVerifiedAt == nil {
			now := time.Now().UTC()
			u.EmailVerifiedAt = &now
		}
	})
	if err != nil {
		return domain.User{}, err
	}
	u, _, _ := m.GetUserByID(id)
	return u, nil
}

// SetLastLogin records a successful login.
func (m *MemoryStore) SetLastLogin(id string, at time.Time) error {
	return m.mutateUser(id, func(u *domain.User) {
		t := at.UTC()
		u.LastLoginAt = &t
	})
}

// SetUserAdmin flips the admin flag.
func (m *MemoryStore) SetUserAdmin(id string, admin bool) (domain.User, error) {
	if err := m.mutateUser(id, func(u *domain.User) { u.IsAdmin = admin }); err != nil {
		return domain.User{}, err
	}
	u, _, _ := m.GetUserByID(id)
	return u, nil
}

// DeleteUser removes a user with their books and tokens.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.email, u.Email)
	for bookID, b := range m.books {
		if b.CreatedBy == id {
			delete(m.books, bookID)
		}
	}
	for value, tok := range m.tokens {
		if tok.UserID == id {
			delete(m.tokens, value)
		}
	}
	return nil
}

// ListUsers returns one page of users ordered by creation time.
func (m *MemoryStore) ListUsers(page, limit int) ([]domain.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []domain.User{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// UserStats aggregates account counts.
func (m *MemoryStore) UserStats() (domain.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.UserStats
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	for _, u := range m.users {
		stats.Total++
		if u.EmailVerifiedAt != nil {
			stats.Verified++
		}
		if u.IsAdmin {
			stats.Admins++
		}
		if u.CreatedAt.After(cutoff) {
			stats.CreatedLast30++
		}
	}
	return stats, nil
}

// CreateBook stores a catalog entry and tracks insertion order.
func (m *MemoryStore) CreateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// UpdateBook replaces the mutable fields of a book.
func (m *MemoryStore) UpdateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.books[b.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = b.Title
	existing.Author = b.Author
	existing.Description = b.Description
	existing.ThumbnailURL = b.ThumbnailURL
	existing.Rating = b.Rating
	existing.UpdatedAt = time.Now().UTC()
	m.books[b.ID] = existing
	return nil
}

// DeleteBook removes a book.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	return nil
}

// ListBooks applies the filter the same way the relational store does.
func (m *MemoryStore) ListBooks(filter domain.BookFilter) ([]domain.Book, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		b, ok := m.books[id]
		if !ok {
			continue
		}
		if filter.Search != "" && !containsFold(b.Title, filter.Search) &&
			!containsFold(b.Author, filter.Search) && !containsFold(b.Description, filter.Search) {
			continue
		}
		if filter.Author != "" && !containsFold(b.Author, filter.Author) {
			continue
		}
		if filter.MinRating != nil && (b.Rating == nil || *b.Rating < *filter.MinRating) {
			continue
		}
		if filter.MaxRating != nil && (b.Rating == nil || *b.Rating > *filter.MaxRating) {
			continue
		}
		matched = append(matched, b)
	}
	sortBooks(matched, filter.SortBy, filter.SortOrder)

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return []domain.Book{}, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// ListBooksByOwner returns every book created by a user.
func (m *MemoryStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Book, 0)
	for _, id := range m.order {
		if b, ok := m.books[id]; ok && b.CreatedBy == ownerID {
			res = append(res, b)
		}
	}
	return res, nil
}

// BookStats aggregates catalog counts.
func (m *MemoryStore) BookStats() (domain.BookStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.BookStats
	var sum float64
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	for _, b := range m.books {
		stats.Total++
		if b.Rating != nil {
			stats.Rated++
			sum += *b.Rating
		}
		if b.CreatedAt.After(cutoff) {
			stats.CreatedLast30++
		}
	}
	if stats.Rated > 0 {
		stats.AverageRating = sum / float64(stats.Rated)
	}
	return stats, nil
}

// IssueToken replaces any live token of the same kind for the user.
func (m *MemoryStore) IssueToken(userID string, kind domain.TokenKind) (domain.VerificationToken, error) {
	value, err := util.RandomHex(32)
	if err != nil {
		return domain.VerificationToken{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, tok := range m.tokens {
		if tok.UserID == userID && tok.Kind == kind && tok.UsedAt == nil {
			delete(m.tokens, v)
		}
	}
	now := time.Now().UTC()
	token := domain.VerificationToken{
		ID:        util.NewID(),
		UserID:    userID,
		Token:     value,
		Kind:      kind,
		ExpiresAt: now.Add(tokenTTL(kind)),
		CreatedAt: now,
	}
	m.tokens[value] = token
	return token, nil
}

// ConsumeToken marks a live token used and returns its owner.
func (m *MemoryStore) ConsumeToken(token string, kind domain.TokenKind) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[token]
	if !ok || tok.Kind != kind || tok.UsedAt != nil || !tok.ExpiresAt.After(time.Now().UTC()) {
		return domain.User{}, ErrTokenInvalid
	}
	now := time.Now().UTC()
	tok.UsedAt = &now
	m.tokens[token] = tok
	user, found := m.users[tok.UserID]
	if !found {
		return domain.User{}, ErrTokenInvalid
	}
	return user, nil
}

// SweepExpiredTokens deletes all tokens past expiry.
func (m *MemoryStore) SweepExpiredTokens() (map[domain.TokenKind]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	counts := make(map[domain.TokenKind]int64, 2)
	for v, tok := range m.tokens {
		if tok.ExpiresAt.Before(now) {
			counts[tok.Kind]++
			delete(m.tokens, v)
		}
	}
	return counts, nil
}

// RevokeUserTokens burns all unused tokens for a user.
func (m *MemoryStore) RevokeUserTokens(userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var revoked int64
	for v, tok := range m.tokens {
		if tok.UserID == userID && tok.UsedAt == nil {
			tok.UsedAt = &now
			m.tokens[v] = tok
			revoked++
		}
	}
	return revoked, nil
}

// ExpireToken backdates a token's expiry; test hook.
func (m *MemoryStore) ExpireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[token]; ok {
		tok.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		m.tokens[token] = tok
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortBooks(books []domain.Book, sortBy, sortOrder string) {
	less := func(i, j int) bool {
		switch sortBy {
		case "title":
			return books[i].Title < books[j].Title
		case "author":
			return books[i].Author < books[j].Author
		case "rating":
			ri, rj := ratingOrZero(books[i]), ratingOrZero(books[j])
			if ri != rj {
				return ri < rj
			}
			return books[i].CreatedAt.Before(books[j].CreatedAt)
		default:
			return books[i].CreatedAt.Before(books[j].CreatedAt)
		}
	}
	if sortOrder == "asc" {
		sort.SliceStable(books, less)
		return
	}
	sort.SliceStable(books, func(i, j int) bool { return less(j, i) })
}

func ratingOrZero(b domain.Book) float64 {
	if b.Rating == nil {
		return 0
	}
	return *b.Rating
}
