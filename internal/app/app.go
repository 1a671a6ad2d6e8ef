// Package app implements the application services behind the HTTP
// handlers: account and auth flows, the book catalog, and admin
// operations. It owns cache-aside reads and post-write invalidation so
// handlers never touch cache keys directly.
package app

import (
	"context"
	"log/slog"
	"time"

	"bookshelf/internal/mail"
	"bookshelf/pkg/authtoken"
	"bookshelf/pkg/cache"
	"bookshelf/pkg/session"
	"bookshelf/pkg/storage"
	"bookshelf/pkg/store"
)

// App wires the stores and managers the services need. All fields are
// required except Objects and the mail sender, which degrade to no-ops.
type App struct {
	store    store.Store
	cache    cache.Cache
	sessions *session.Manager
	tokens   *authtoken.Manager
	mail     mail.Sender
	objects  storage.ObjectStore

	frontendURL string
	logger      *slog.Logger
}

// Options collects the dependencies for New.
type Options struct {
	Store       store.Store
	Cache       cache.Cache
	Sessions    *session.Manager
	Tokens      *authtoken.Manager
	Mail        mail.Sender
	Objects     storage.ObjectStore
	FrontendURL string
	Logger      *slog.Logger
}

func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Mail
	if m == nil {
		m = mail.NewLogSender(logger)
	}
	return &App{
		store:       opts.Store,
		cache:       opts.Cache,
		sessions:    opts.Sessions,
		tokens:      opts.Tokens,
		mail:        m,
		objects:     opts.Objects,
		frontendURL: opts.FrontendURL,
		logger:      logger,
	}
}

// Store exposes the relational store for health checks.
func (a *App) Store() store.Store { return a.store }

// Cache exposes the cache for health checks and admin invalidation.
func (a *App) Cache() cache.Cache { return a.cache }

// RunTokenSweeper deletes expired verification tokens on a fixed
// interval until ctx is cancelled. Sweep failures are logged and the
// loop keeps going.
func (a *App) RunTokenSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := a.store.SweepExpiredTokens()
			if err != nil {
				a.logger.Error("token sweep failed", "error", err)
				continue
			}
			for kind, n := range counts {
				if n > 0 {
					a.logger.Info("swept expired tokens", "kind", string(kind), "count", n)
				}
			}
		}
	}
}

// ClearCache drops cached entries matching pattern. Used by the admin
// cache endpoint.
func (a *App) ClearCache(pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	return a.cache.DeleteByPattern(pattern)
}

func (a *App) sendMail(msg mail.Message, err error, flow string) {
	if err != nil {
		a.logger.Error("build mail failed", "flow", flow, "error", err)
		return
	}
	if err := a.mail.Send(msg); err != nil {
		a.logger.Error("send mail failed", "flow", flow, "to", msg.To, "error", err)
	}
}
