package domain

import "time"

// TokenKind distinguishes one-time verification token flavors.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email_verification"
	TokenPasswordReset     TokenKind = "password_reset"
)

// User is a registered account. EmailVerifiedAt is nil until the user
// completes email verification.
type User struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	IsAdmin         bool       `json:"isAdmin"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Book is a catalog entry owned by its creator.
type Book struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Description  string    `json:"description,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Rating       *float64  `json:"rating,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VerificationToken is a single-use token for email verification or
// password reset. Valid iff UsedAt is nil and ExpiresAt is in the future.
type VerificationToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Token     string     `json:"token"`
	Kind      TokenKind  `json:"kind"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// BookFilter carries list query parameters after normalization.
type BookFilter struct {
	Page      int      `json:"page"`
	Limit     int      `json:"limit"`
	Search    string   `json:"search,omitempty"`
	Author    string   `json:"author,omitempty"`
	MinRating *float64 `json:"minRating,omitempty"`
	MaxRating *float64 `json:"maxRating,omitempty"`
	SortBy    string   `json:"sortBy"`
	SortOrder string   `json:"sortOrder"`
}

// Pagination describes the position of a page within the full result set.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// NewPagination derives page envelope fields from a total row count.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// BookPage is a paginated book listing.
type BookPage struct {
	Items      []Book     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// UserPage is a paginated user listing.
type UserPage struct {
	Items      []User     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// UserStats aggregates account counts for the admin dashboard.
type UserStats struct {
	Total         int64 `json:"total"`
	Verified      int64 `json:"verified"`
	Admins        int64 `json:"admins"`
	CreatedLast30 int64 `json:"createdLast30Days"`
}

// BookStats aggregates catalog counts for the admin dashboard.
type BookStats struct {
	Total         int64   `json:"total"`
	Rated         int64   `json:"rated"`
	AverageRating float64 `json:"averageRating"`
	CreatedLast30 int64   `json:"createdLast30Days"`
}
