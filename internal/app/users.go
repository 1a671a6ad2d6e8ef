package app

import (
	"context"
	"errors"
	"strings"

	"bookshelf/pkg/apperr"
	"bookshelf/pkg/cache"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

// GetUser returns an account. Non-admins may only read themselves.
func (a *App) GetUser(actor domain.User, id string) (domain.User, error) {
	if !actor.IsAdmin && actor.ID != id {
		return domain.User{}, apperr.New(apperr.KindForbidden, "you may only view your own account")
	}
	user, ok, err := a.getUser(id)
	if err != nil {
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "get user", err)
	}
	if !ok {
		return domain.User{}, apperr.New(apperr.KindNotFound, "user not found")
	}
	return user, nil
}

// UpdateUserName renames the actor's own account.
func (a *App) UpdateUserName(actor domain.User, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, apperr.New(apperr.KindValidation, "name is required")
	}
	if err := a.store.UpdateUserName(actor.ID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, apperr.New(apperr.KindNotFound, "user not found")
		}
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "update user", err)
	}
	a.invalidateUser(actor.ID)
	return a.GetUser(actor, actor.ID)
}

// ListUsers returns a page of accounts. Admin only; the handler enforces
// the role, the service just paginates.
func (a *App) ListUsers(page, limit int) (domain.UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	users, total, err := a.store.ListUsers(page, limit)
	if err != nil {
		return domain.UserPage{}, apperr.Wrap(apperr.KindInternal, "list users", err)
	}
	return domain.UserPage{
		Items:      users,
		Pagination: domain.NewPagination(page, limit, total),
	}, nil
}

// DeleteUser removes an account with its books, tokens, thumbnails and
// sessions. Thumbnail object deletion is best-effort.
func (a *App) DeleteUser(ctx context.Context, id string) error {
	books, err := a.store.ListBooksByOwner(id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "list user books", err)
	}
	if err := a.store.DeleteUser(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Wrap(apperr.KindInternal, "delete user", err)
	}
	for _, b := range books {
		a.deleteThumbnailObject(ctx, b.ThumbnailURL)
		a.invalidateBook(b.ID)
	}
	a.sessions.DestroyAllForUser(id)
	a.invalidateUser(id)
	return nil
}

// ToggleAdmin flips the admin flag on an account.
func (a *App) ToggleAdmin(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "get user", err)
	}
	if !ok {
		return domain.User{}, apperr.New(apperr.KindNotFound, "user not found")
	}
	updated, err := a.store.SetUserAdmin(id, !user.IsAdmin)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, apperr.New(apperr.KindNotFound, "user not found")
		}
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "toggle admin", err)
	}
	a.invalidateUser(id)
	return updated, nil
}

// UserStats returns account aggregates, cached briefly.
func (a *App) UserStats() (domain.UserStats, error) {
	key := cache.StatsKey("users")
	var cached domain.UserStats
	if hit, err := a.cache.Get(key, &cached); err == nil && hit {
		return cached, nil
	}
	stats, err := a.store.UserStats()
	if err != nil {
		return domain.UserStats{}, apperr.Wrap(apperr.KindInternal, "user stats", err)
	}
	if err := a.cache.Set(key, stats, cache.StatsTTL); err != nil {
		a.logger.Warn("cache user stats failed", "error", err)
	}
	return stats, nil
}
