package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"bookshelf/internal/util"
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/cache"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var bookSortFields = map[string]bool{
	"createdAt": true,
	"title":     true,
	"author":    true,
	"rating":    true,
}

// CreateBookInput carries the fields a client may set on a new book.
type CreateBookInput struct {
	Title       string
	Author      string
	Description string
	Rating      *float64
}

// UpdateBookInput is a partial update. Nil fields are left unchanged.
type UpdateBookInput struct {
	Title       *string
	Author      *string
	Description *string
	Rating      *float64
}

// ListBooks returns a page of the catalog, serving repeat queries from
// the cache.
func (a *App) ListBooks(filter domain.BookFilter) (domain.BookPage, error) {
	filter = normalizeFilter(filter)
	if err := validateFilter(filter); err != nil {
		return domain.BookPage{}, err
	}

	key := cache.BookListKey(filter)
	var cached domain.BookPage
	if hit, err := a.cache.Get(key, &cached); err == nil && hit {
		return cached, nil
	}

	books, total, err := a.store.ListBooks(filter)
	if err != nil {
		return domain.BookPage{}, apperr.Wrap(apperr.KindInternal, "list books", err)
	}
	page := domain.BookPage{
		Items:      books,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
	}
	if err := a.cache.Set(key, page, cache.BookListTTL); err != nil {
		a.logger.Warn("cache book list failed", "error", err)
	}
	return page, nil
}

// GetBook is the cache-aside read for a single book.
func (a *App) GetBook(id string) (domain.Book, error) {
	var cached domain.Book
	if hit, err := a.cache.Get(cache.BookKey(id), &cached); err == nil && hit {
		return cached, nil
	}
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "get book", err)
	}
	if !ok {
		return domain.Book{}, apperr.New(apperr.KindNotFound, "book not found")
	}
	if err := a.cache.Set(cache.BookKey(id), book, cache.BookTTL); err != nil {
		a.logger.Warn("cache book failed", "book_id", id, "error", err)
	}
	return book, nil
}

// CreateBook adds a catalog entry owned by the actor.
func (a *App) CreateBook(actor domain.User, in CreateBookInput) (domain.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	details := map[string]string{}
	if in.Title == "" {
		details["title"] = "title is required"
	}
	if in.Author == "" {
		details["author"] = "author is required"
	}
	if err := validateRating(in.Rating); err != nil {
		details["rating"] = err.Error()
	}
	if len(details) > 0 {
		return domain.Book{}, apperr.New(apperr.KindValidation, "invalid book data").WithDetails(details)
	}

	book := domain.Book{
		ID:          util.NewID(),
		Title:       in.Title,
		Author:      in.Author,
		Description: strings.TrimSpace(in.Description),
		Rating:      in.Rating,
		CreatedBy:   actor.ID,
	}
	if err := a.store.CreateBook(book); err != nil {
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "create book", err)
	}
	a.invalidateBook(book.ID)
	return a.GetBook(book.ID)
}

// UpdateBook applies a partial update. Only the owner or an admin may
// modify a book.
func (a *App) UpdateBook(actor domain.User, id string, in UpdateBookInput) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "get book", err)
	}
	if !ok {
		return domain.Book{}, apperr.New(apperr.KindNotFound, "book not found")
	}
	if err := requireOwnerOrAdmin(actor, book); err != nil {
		return domain.Book{}, err
	}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return domain.Book{}, apperr.New(apperr.KindValidation, "title cannot be empty")
		}
		book.Title = t
	}
	if in.Author != nil {
		au := strings.TrimSpace(*in.Author)
		if au == "" {
			return domain.Book{}, apperr.New(apperr.KindValidation, "author cannot be empty")
		}
		book.Author = au
	}
	if in.Description != nil {
		book.Description = strings.TrimSpace(*in.Description)
	}
	if in.Rating != nil {
		if err := validateRating(in.Rating); err != nil {
			return domain.Book{}, apperr.New(apperr.KindValidation, err.Error())
		}
		book.Rating = in.Rating
	}

	if err := a.store.UpdateBook(book); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Book{}, apperr.New(apperr.KindNotFound, "book not found")
		}
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "update book", err)
	}
	a.invalidateBook(id)
	return a.GetBook(id)
}

// DeleteBook removes a book and its thumbnail. Only the owner or an
// admin may delete.
func (a *App) DeleteBook(ctx context.Context, actor domain.User, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "get book", err)
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "book not found")
	}
	if err := requireOwnerOrAdmin(actor, book); err != nil {
		return err
	}
	if err := a.store.DeleteBook(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "book not found")
		}
		return apperr.Wrap(apperr.KindInternal, "delete book", err)
	}
	a.deleteThumbnailObject(ctx, book.ThumbnailURL)
	a.invalidateBook(id)
	return nil
}

// thumbnailExts is the accepted upload extension whitelist.
var thumbnailExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// SetThumbnail stores an uploaded image and records its public URL on the
// book, removing any previous thumbnail object.
func (a *App) SetThumbnail(ctx context.Context, actor domain.User, bookID, filename string, r io.Reader, size int64) (domain.Book, error) {
	if a.objects == nil {
		return domain.Book{}, apperr.New(apperr.KindInternal, "thumbnail storage is not configured")
	}
	ext := strings.ToLower(path.Ext(filename))
	contentType, ok := thumbnailExts[ext]
	if !ok {
		return domain.Book{}, apperr.New(apperr.KindValidation, "thumbnail must be a .jpg, .jpeg, .png or .webp file")
	}

	book, found, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "get book", err)
	}
	if !found {
		return domain.Book{}, apperr.New(apperr.KindNotFound, "book not found")
	}
	if err := requireOwnerOrAdmin(actor, book); err != nil {
		return domain.Book{}, err
	}

	key := fmt.Sprintf("thumbnails/%s%s", util.NewID(), ext)
	url, err := a.objects.Put(ctx, key, r, size, contentType)
	if err != nil {
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "store thumbnail", err)
	}
	old := book.ThumbnailURL
	book.ThumbnailURL = url
	if err := a.store.UpdateBook(book); err != nil {
		a.deleteThumbnailObject(ctx, url)
		return domain.Book{}, apperr.Wrap(apperr.KindInternal, "record thumbnail", err)
	}
	a.deleteThumbnailObject(ctx, old)
	a.invalidateBook(bookID)
	return a.GetBook(bookID)
}

func (a *App) deleteThumbnailObject(ctx context.Context, url string) {
	if url == "" || a.objects == nil {
		return
	}
	if err := a.objects.Delete(ctx, url); err != nil {
		a.logger.Warn("delete thumbnail object failed", "url", url, "error", err)
	}
}

// BookStats returns catalog aggregates, cached briefly.
func (a *App) BookStats() (domain.BookStats, error) {
	key := cache.StatsKey("books")
	var cached domain.BookStats
	if hit, err := a.cache.Get(key, &cached); err == nil && hit {
		return cached, nil
	}
	stats, err := a.store.BookStats()
	if err != nil {
		return domain.BookStats{}, apperr.Wrap(apperr.KindInternal, "book stats", err)
	}
	if err := a.cache.Set(key, stats, cache.StatsTTL); err != nil {
		a.logger.Warn("cache book stats failed", "error", err)
	}
	return stats, nil
}

// invalidateBook drops the single-book entry, every cached list page and
// the stats aggregates after a write.
func (a *App) invalidateBook(id string) {
	if err := a.cache.Delete(cache.BookKey(id)); err != nil {
		a.logger.Warn("invalidate book cache failed", "book_id", id, "error", err)
	}
	if _, err := a.cache.DeleteByPattern(cache.BookListPattern); err != nil {
		a.logger.Warn("invalidate book list cache failed", "error", err)
	}
	if _, err := a.cache.DeleteByPattern(cache.StatsPattern); err != nil {
		a.logger.Warn("invalidate stats cache failed", "error", err)
	}
}

func requireOwnerOrAdmin(actor domain.User, book domain.Book) error {
	if actor.IsAdmin || actor.ID == book.CreatedBy {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "you do not own this book")
}

func validateRating(r *float64) error {
	if r == nil {
		return nil
	}
	if *r < 1 || *r > 5 {
		return errors.New("rating must be between 1 and 5")
	}
	return nil
}

func normalizeFilter(f domain.BookFilter) domain.BookFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Author = strings.TrimSpace(f.Author)
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
	f.SortOrder = strings.ToLower(f.SortOrder)
	return f
}

func validateFilter(f domain.BookFilter) error {
	details := map[string]string{}
	if !bookSortFields[f.SortBy] {
		details["sortBy"] = "sortBy must be one of createdAt, title, author, rating"
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		details["sortOrder"] = "sortOrder must be asc or desc"
	}
	if err := validateRating(f.MinRating); err != nil {
		details["minRating"] = err.Error()
	}
	if err := validateRating(f.MaxRating); err != nil {
		details["maxRating"] = err.Error()
	}
	if f.MinRating != nil && f.MaxRating != nil && *f.MinRating > *f.MaxRating {
		details["minRating"] = "minRating cannot exceed maxRating"
	}
	if len(details) > 0 {
		return apperr.New(apperr.KindValidation, "invalid list query").WithDetails(details)
	}
	return nil
}
