package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
)

const migrateLockID int64 = 52804417

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &VerificationTokenModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *GormStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// CreateUser registers a user, translating unique violations on email.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email. Emails are stored lowercase.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUserName renames a user.
func (s *GormStore) UpdateUserName(id, name string) error {
	return s.userUpdates(id, map[string]any{"name": name})
}

// SetUserPassword replaces the stored password hash.
func (s *GormStore) SetUserPassword(id, passwordHash string) error {
	return s.userUpdates(id, map[string]any{"password_hash": passwordHash})
}

// MarkEmailVerified sets the verification timestamp at most once and
// returns the fresh user row.
func (s *GormStore) MarkEmailVerified(id string) (domain.User, error) {
	now := time.Now().UTC()
	res := s.db.Model(&UserModel{}).
		Where("id = ? AND email_verified_at IS NULL", id).
		Updates(map[string]any{"email_verified_at": now, "updated_at": now})
	if res.Error != nil {
		return domain.User{}, res.Error
	}
	user, found, err := s.GetUserByID(id)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

// SetLastLogin records a successful login.
func (s *GormStore) SetLastLogin(id string, at time.Time) error {
	return s.userUpdates(id, map[string]any{"last_login_at": at.UTC()})
}

// SetUserAdmin flips the admin flag and returns the fresh user row.
func (s *GormStore) SetUserAdmin(id string, admin bool) (domain.User, error) {
	if err := s.userUpdates(id, map[string]any{"is_admin": admin}); err != nil {
		return domain.User{}, err
	}
	user, found, err := s.GetUserByID(id)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (s *GormStore) userUpdates(id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := s.db.Model(&UserModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user with their books and verification tokens.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&BookModel{}, "created_by = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&VerificationTokenModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&UserModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListUsers returns one page of users ordered by creation time.
func (s *GormStore) ListUsers(page, limit int) ([]domain.User, int64, error) {
	var total int64
	if err := s.db.Model(&UserModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []UserModel
	if err := s.db.Order("created_at ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, total, nil
}

// UserStats aggregates account counts.
func (s *GormStore) UserStats() (domain.UserStats, error) {
	var stats domain.UserStats
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	err := s.db.Model(&UserModel{}).
		Select("COUNT(*) AS total, COUNT(email_verified_at) AS verified, "+
			"COUNT(*) FILTER (WHERE is_admin) AS admins, "+
			"COUNT(*) FILTER (WHERE created_at >= ?) AS created_last30", cutoff).
		Scan(&stats).Error
	return stats, err
}

// CreateBook stores a catalog entry.
func (s *GormStore) CreateBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// UpdateBook persists the mutable columns of a book.
func (s *GormStore) UpdateBook(b domain.Book) error {
	res := s.db.Model(&BookModel{}).Where("id = ?", b.ID).Updates(map[string]any{
		"title":         b.Title,
		"author":        b.Author,
		"description":   b.Description,
		"thumbnail_url": b.ThumbnailURL,
		"rating":        b.Rating,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBook removes a book row.
func (s *GormStore) DeleteBook(id string) error {
	res := s.db.Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var bookSortColumns = map[string]string{
	"createdAt": "created_at",
	"title":     "title",
	"author":    "author",
	"rating":    "rating",
}

// ListBooks applies the filter and returns one page plus the total count.
func (s *GormStore) ListBooks(filter domain.BookFilter) ([]domain.Book, int64, error) {
	filtered := func() *gorm.DB {
		query := s.db.Model(&BookModel{})
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			query = query.Where("title ILIKE ? OR author ILIKE ? OR description ILIKE ?", pattern, pattern, pattern)
		}
		if filter.Author != "" {
			query = query.Where("author ILIKE ?", "%"+filter.Author+"%")
		}
		if filter.MinRating != nil {
			query = query.Where("rating >= ?", *filter.MinRating)
		}
		if filter.MaxRating != nil {
			query = query.Where("rating <= ?", *filter.MaxRating)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := bookSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if filter.SortOrder == "asc" {
		direction = "ASC"
	}

	var models []BookModel
	if err := filtered().Order(column + " " + direction).
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, total, nil
}

// ListBooksByOwner returns every book created by a user.
func (s *GormStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Where("created_by = ?", ownerID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, nil
}

// BookStats aggregates catalog counts.
func (s *GormStore) BookStats() (domain.BookStats, error) {
	var stats domain.BookStats
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	err := s.db.Model(&BookModel{}).
		Select("COUNT(*) AS total, COUNT(rating) AS rated, "+
			"COALESCE(AVG(rating), 0) AS average_rating, "+
			"COUNT(*) FILTER (WHERE created_at >= ?) AS created_last30", cutoff).
		Scan(&stats).Error
	return stats, err
}

// IssueToken deletes any live token of the same kind for the user and
// persists a fresh one. 256 bits of entropy, hex-encoded.
func (s *GormStore) IssueToken(userID string, kind domain.TokenKind) (domain.VerificationToken, error) {
	value, err := util.RandomHex(32)
	if err != nil {
		return domain.VerificationToken{}, fmt.Errorf("generate token: %w", err)
	}
	now := time.Now().UTC()
	model := VerificationTokenModel{
		ID:        util.NewID(),
		UserID:    userID,
		Token:     value,
		Kind:      string(kind),
		ExpiresAt: now.Add(tokenTTL(kind)),
		CreatedAt: now,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&VerificationTokenModel{},
			"user_id = ? AND kind = ? AND used_at IS NULL", userID, string(kind)).Error; err != nil {
			return err
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.VerificationToken{}, err
	}
	return tokenFromModel(model), nil
}

// ConsumeToken atomically marks a live token used and returns its owner.
// The conditional update makes exactly one of two concurrent consumers win.
func (s *GormStore) ConsumeToken(token string, kind domain.TokenKind) (domain.User, error) {
	now := time.Now().UTC()
	res := s.db.Model(&VerificationTokenModel{}).
		Where("token = ? AND kind = ? AND used_at IS NULL AND expires_at > ?", token, string(kind), now).
		Update("used_at", now)
	if res.Error != nil {
		return domain.User{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, ErrTokenInvalid
	}
	var model VerificationTokenModel
	if err := s.db.Where("token = ?", token).First(&model).Error; err != nil {
		return domain.User{}, err
	}
	user, found, err := s.GetUserByID(model.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, ErrTokenInvalid
	}
	return user, nil
}

// SweepExpiredTokens deletes all tokens past expiry and reports per-kind counts.
func (s *GormStore) SweepExpiredTokens() (map[domain.TokenKind]int64, error) {
	now := time.Now().UTC()
	counts := make(map[domain.TokenKind]int64, 2)
	for _, kind := range []domain.TokenKind{domain.TokenEmailVerification, domain.TokenPasswordReset} {
		res := s.db.Delete(&VerificationTokenModel{}, "kind = ? AND expires_at < ?", string(kind), now)
		if res.Error != nil {
			return counts, res.Error
		}
		counts[kind] = res.RowsAffected
	}
	return counts, nil
}

// RevokeUserTokens burns all unused tokens for a user by marking them used.
func (s *GormStore) RevokeUserTokens(userID string) (int64, error) {
	res := s.db.Model(&VerificationTokenModel{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Update("used_at", time.Now().UTC())
	return res.RowsAffected, res.Error
}

func tokenTTL(kind domain.TokenKind) time.Duration {
	if kind == domain.TokenPasswordReset {
		return PasswordResetTTL
	}
	return EmailVerificationTTL
}
