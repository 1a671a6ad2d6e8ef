package app

import (
	"context"
	"testing"

	"bookshelf/pkg/apperr"
	"bookshelf/pkg/domain"
)

func ptr[T any](v T) *T { return &v }

func TestCreateBookRatingBounds(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "Alice", "alice@example.com").User

	for _, bad := range []float64{0.99, 5.01, -1, 0} {
		_, err := env.app.CreateBook(owner, CreateBookInput{Title: "T", Author: "A", Rating: ptr(bad)})
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("rating %v should be rejected, got %v", bad, err)
		}
	}
	for _, good := range []float64{1.0, 5.0, 3.5} {
		if _, err := env.app.CreateBook(owner, CreateBookInput{Title: "T", Author: "A", Rating: ptr(good)}); err != nil {
			t.Fatalf("rating %v should be accepted: %v", good, err)
		}
	}
	// Rating is optional.
	if _, err := env.app.CreateBook(owner, CreateBookInput{Title: "T", Author: "A"}); err != nil {
		t.Fatalf("nil rating should be accepted: %v", err)
	}
}

func TestCreateBookRequiresTitleAndAuthor(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "Alice", "alice@example.com").User

	_, err := env.app.CreateBook(owner, CreateBookInput{Title: "  ", Author: ""})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateBookOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "Alice", "alice@example.com").User
	other := env.register(t, "Bob", "bob@example.com").User

	book, err := env.app.CreateBook(owner, CreateBookInput{Title: "Original", Author: "A"})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	if _, err := env.app.UpdateBook(other, book.ID, UpdateBookInput{Title: ptr("Hijacked")}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("non-owner update should be forbidden, got %v", err)
	}
	if err := env.app.DeleteBook(context.Background(), other, book.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("non-owner delete should be forbidden, got %v", err)
	}

	// An admin may edit anyone's book.
	admin, err := env.app.ToggleAdmin(other.ID)
	if err != nil {
		t.Fatalf("toggle admin: %v", err)
	}
	updated, err := env.app.UpdateBook(admin, book.ID, UpdateBookInput{Title: ptr("Edited by admin")})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Title != "Edited by admin" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
}

func TestListBooksPagination(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "Alice", "alice@example.com").User

	for i := 0; i < 25; i++ {
		title := string(rune('A'+i%26)) + " title"
		if _, err := env.app.CreateBook(owner, CreateBookInput{Title: title, Author: "Author"}); err != nil {
			t.Fatalf("create book %d: %v", i, err)
		}
	}

	page, err := env.app.ListBooks(domain.BookFilter{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	p := page.Pagination
	if p.Total != 25 || p.TotalPages != 3 || !p.HasNextPage || p.HasPrevPage {
		t.Fatalf("unexpected pagination: %+v", p)
	}
	if len(page.Items) != 10 {
		t.Fatalf("page size = %d, want 10", len(page.Items))
	}

	last, err := env.app.ListBooks(domain.BookFilter{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("list last page: %v", err)
	}
	if len(last.Items) != 5 || last.Pagination.HasNextPage || !last.Pagination.HasPrevPage {
		t.Fatalf("unexpected last page: %d items, %+v", len(last.Items), last.Pagination)
	}
}

func TestListBooksRejectsBadSort(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.app.ListBooks(domain.BookFilter{SortBy: "password_hash"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("unknown sort field should be rejected, got %v", err)
	}
	if _, err := env.app.ListBooks(domain.BookFilter{SortOrder: "sideways"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("unknown sort order should be rejected, got %v", err)
	}
}

func TestListBooksCacheInvalidatedAfterWrite(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "Alice", "alice@example.com").User

	book, err := env.app.CreateBook(owner, CreateBookInput{Title: "Before", Author: "A"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Populate the list cache, then write.
	if _, err := env.app.ListBooks(domain.BookFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := env.app.UpdateBook(owner, book.ID, UpdateBookInput{Title: ptr("After")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	page, err := env.app.ListBooks(domain.BookFilter{})
	if err != nil {
		t.Fatalf("list after write: %v", err)
	}
	found := false
	for _, b := range page.Items {
		if b.ID == book.ID {
			found = true
			if b.Title != "After" {
				t.Fatalf("list served stale title %q", b.Title)
			}
		}
	}
	if !found {
		t.Fatalf("book missing from list")
	}
}

func TestGetBookNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.app.GetBook("missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBookStats(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "Alice", "alice@example.com").User

	if _, err := env.app.CreateBook(owner, CreateBookInput{Title: "Rated", Author: "A", Rating: ptr(4.0)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.CreateBook(owner, CreateBookInput{Title: "Unrated", Author: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	stats, err := env.app.BookStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Rated != 1 || stats.AverageRating != 4.0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
