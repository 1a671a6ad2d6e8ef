package store

import (
	"errors"
	"time"

	"bookshelf/pkg/domain"
)

// Verification token lifetimes per kind.
const (
	EmailVerificationTTL = 24 * time.Hour
	PasswordResetTTL     = time.Hour
)

var (
	// ErrNotFound indicates the referenced row is absent.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail indicates a uniqueness violation on the email column.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenInvalid covers unknown, expired and already-used verification
	// tokens alike. Callers must not tell the cases apart to end users.
	ErrTokenInvalid = errors.New("invalid or expired token")
)

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	UpdateUserName(id, name string) error
	SetUserPassword(id, passwordHash string) error
	MarkEmailVerified(id string) (domain.User, error)
	SetLastLogin(id string, at time.Time) error
	SetUserAdmin(id string, admin bool) (domain.User, error)
	DeleteUser(id string) error
	ListUsers(page, limit int) ([]domain.User, int64, error)
	UserStats() (domain.UserStats, error)
}

// BookStore persists catalog entries.
type BookStore interface {
	CreateBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	UpdateBook(domain.Book) error
	DeleteBook(id string) error
	ListBooks(domain.BookFilter) ([]domain.Book, int64, error)
	ListBooksByOwner(ownerID string) ([]domain.Book, error)
	BookStats() (domain.BookStats, error)
}

// VerificationTokenStore issues and consumes single-use tokens.
type VerificationTokenStore interface {
	// IssueToken replaces any live token of the same kind for the user.
	IssueToken(userID string, kind domain.TokenKind) (domain.VerificationToken, error)
	// ConsumeToken marks a live token used and returns its owner, or
	// ErrTokenInvalid. Exactly one of two concurrent attempts succeeds.
	ConsumeToken(token string, kind domain.TokenKind) (domain.User, error)
	// SweepExpiredTokens deletes tokens past expiry regardless of use state.
	SweepExpiredTokens() (map[domain.TokenKind]int64, error)
	// RevokeUserTokens burns a user's unused tokens without deleting rows.
	RevokeUserTokens(userID string) (int64, error)
}

// Store is the relational system of record.
type Store interface {
	UserStore
	BookStore
	VerificationTokenStore
	Ping() error
}
