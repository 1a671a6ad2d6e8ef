// Package server exposes the HTTP API: auth flows, the book catalog,
// account administration and health.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bookshelf/internal/app"
	"bookshelf/internal/ratelimit"
	"bookshelf/internal/util"
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// AuthLimiter throttles signup/login/refresh/password routes. Nil
	// disables rate limiting (tests, development).
	AuthLimiter *ratelimit.FixedWindowLimiter
	CORSOrigin  string
}

// Server exposes the HTTP endpoints.
type Server struct {
	app         *app.App
	authLimiter *ratelimit.FixedWindowLimiter
	corsOrigin  string
	mux         *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:         cfg.App,
		authLimiter: cfg.AuthLimiter,
		corsOrigin:  cfg.CORSOrigin,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	if s.corsOrigin != "" {
		h = util.WithCORS(s.corsOrigin, h)
	}
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("/auth/reset-password", s.handleResetPassword)
	s.mux.HandleFunc("/auth/verify-email", s.handleVerifyEmail)

	// books
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.Handle("/books/stats", s.adminOnly(s.handleBookStats))
	s.mux.HandleFunc("/books/", s.handleBookByID)

	// users
	s.mux.Handle("/users", s.adminOnly(s.handleListUsers))
	s.mux.Handle("/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("/users/stats", s.adminOnly(s.handleUserStats))
	s.mux.Handle("/users/", s.authenticated(s.handleUserByID))

	// admin
	s.mux.Handle("/admin/cache/clear", s.adminOnly(s.handleCacheClear))
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		if !user.IsAdmin {
			s.audit(r, "admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	user, err := s.app.UserFromAccessToken(token)
	if err != nil {
		s.audit(r, "authorize", "fail")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	return user, true
}

// withOptionalUser resolves a bearer token when one is present. Any failure
// falls through anonymously instead of rejecting; a resolved identity only
// enriches the request-scoped logger, used on the public read routes.
func (s *Server) withOptionalUser(r *http.Request) *http.Request {
	token, ok := bearerToken(r)
	if !ok {
		return r
	}
	user, err := s.app.UserFromAccessToken(token)
	if err != nil {
		return r
	}
	logger := util.LoggerFromContext(r.Context()).With(slog.String("user_id", user.ID))
	return r.WithContext(util.ContextWithLogger(r.Context(), logger))
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, msg string) bool {
	if s.authLimiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if s.authLimiter.Allow(key) {
		return true
	}
	s.audit(r, "auth.rate_limit", "rate_limited")
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps a classified service error to its HTTP shape.
// Internal errors keep their detail out of the response body.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.KindInternal {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && len(appErr.Details) > 0 {
		writeJSON(w, status, map[string]any{
			"error":   appErr.Message,
			"details": appErr.Details,
		})
		return
	}
	writeError(w, status, err.Error())
}
