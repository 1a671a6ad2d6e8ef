package app

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	appmail "bookshelf/internal/mail"
	"bookshelf/internal/util"
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/auth"
	"bookshelf/pkg/authtoken"
	"bookshelf/pkg/cache"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

// Messages deliberately do not distinguish unknown-account from
// wrong-credential or expired-token cases.
var (
	errBadCredentials = apperr.New(apperr.KindUnauthorized, "invalid email or password")
	errBadToken       = apperr.New(apperr.KindValidation, "invalid or expired token")
)

// AuthResult is returned by flows that establish a login.
type AuthResult struct {
	User      domain.User
	Tokens    authtoken.Pair
	SessionID string
}

// Register creates an account, issues an email-verification token and a
// token pair, and opens a session. The verification mail is best-effort.
func (a *App) Register(name, email, password, ip, userAgent string) (AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if details := validateRegistration(name, email, password); len(details) > 0 {
		return AuthResult{}, apperr.New(apperr.KindValidation, "invalid registration data").WithDetails(details)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return AuthResult{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := a.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return AuthResult{}, apperr.New(apperr.KindConflict, "email already registered")
		}
		return AuthResult{}, apperr.Wrap(apperr.KindInternal, "create user", err)
	}

	if token, err := a.store.IssueToken(user.ID, domain.TokenEmailVerification); err != nil {
		a.logger.Error("issue verification token failed", "user_id", user.ID, "error", err)
	} else {
		msg, merr := appmail.VerificationMessage(user.Email, user.Name, a.frontendURL, token.Token)
		a.sendMail(msg, merr, "register")
	}

	return a.establish(user, ip, userAgent)
}

// Login authenticates credentials and opens a session. Unknown email and
// wrong password produce the same error.
func (a *App) Login(email, password, ip, userAgent string) (AuthResult, error) {
	email = normalizeEmail(email)
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return AuthResult{}, apperr.Wrap(apperr.KindInternal, "look up user", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return AuthResult{}, errBadCredentials
	}

	now := time.Now().UTC()
	if err := a.store.SetLastLogin(user.ID, now); err != nil {
		a.logger.Error("record last login failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	a.invalidateUser(user.ID)

	return a.establish(user, ip, userAgent)
}

func (a *App) establish(user domain.User, ip, userAgent string) (AuthResult, error) {
	pair, err := a.tokens.IssuePair(user.ID)
	if err != nil {
		return AuthResult{}, apperr.Wrap(apperr.KindInternal, "issue tokens", err)
	}
	sessionID, err := a.sessions.Create(user, ip, userAgent)
	if err != nil {
		// A login without a session record is still a valid login.
		a.logger.Warn("create session failed", "user_id", user.ID, "error", err)
	}
	return AuthResult{User: user, Tokens: pair, SessionID: sessionID}, nil
}

// Refresh rotates a refresh token: the presented token is blacklisted
// before a new pair is issued, so replaying it fails.
func (a *App) Refresh(refreshToken string) (authtoken.Pair, error) {
	userID, err := a.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return authtoken.Pair{}, apperr.Wrap(apperr.KindUnauthorized, "invalid refresh token", err)
	}
	user, ok, err := a.getUser(userID)
	if err != nil {
		return authtoken.Pair{}, apperr.Wrap(apperr.KindInternal, "look up user", err)
	}
	if !ok {
		return authtoken.Pair{}, apperr.New(apperr.KindUnauthorized, "invalid refresh token")
	}
	if err := a.tokens.Blacklist(refreshToken); err != nil {
		a.logger.Warn("blacklist refresh token failed", "user_id", user.ID, "error", err)
	}
	pair, err := a.tokens.IssuePair(user.ID)
	if err != nil {
		return authtoken.Pair{}, apperr.Wrap(apperr.KindInternal, "issue tokens", err)
	}
	return pair, nil
}

// Logout blacklists both tokens and destroys the session if one is given.
func (a *App) Logout(accessToken, refreshToken, sessionID string) error {
	if accessToken != "" {
		if err := a.tokens.Blacklist(accessToken); err != nil {
			a.logger.Warn("blacklist access token failed", "error", err)
		}
	}
	if refreshToken != "" {
		if err := a.tokens.Blacklist(refreshToken); err != nil {
			a.logger.Warn("blacklist refresh token failed", "error", err)
		}
	}
	if sessionID != "" {
		a.sessions.Destroy(sessionID)
	}
	return nil
}

// ForgotPassword issues a reset token and mail when the account exists.
// It never reveals whether it does.
func (a *App) ForgotPassword(email string) error {
	email = normalizeEmail(email)
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		a.logger.Error("look up user for password reset failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	token, err := a.store.IssueToken(user.ID, domain.TokenPasswordReset)
	if err != nil {
		a.logger.Error("issue reset token failed", "user_id", user.ID, "error", err)
		return nil
	}
	msg, merr := appmail.PasswordResetMessage(user.Email, user.Name, a.frontendURL, token.Token)
	a.sendMail(msg, merr, "forgot_password")
	return nil
}

// ResetPassword consumes a reset token, re-hashes the password, burns the
// user's remaining verification tokens, and destroys every session.
func (a *App) ResetPassword(token, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return apperr.New(apperr.KindValidation, err.Error())
	}
	user, err := a.store.ConsumeToken(token, domain.TokenPasswordReset)
	if err != nil {
		if errors.Is(err, store.ErrTokenInvalid) {
			return errBadToken
		}
		return apperr.Wrap(apperr.KindInternal, "consume reset token", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	if err := a.store.SetUserPassword(user.ID, hash); err != nil {
		return apperr.Wrap(apperr.KindInternal, "update password", err)
	}
	if _, err := a.store.RevokeUserTokens(user.ID); err != nil {
		a.logger.Error("revoke tokens failed", "user_id", user.ID, "error", err)
	}
	a.sessions.DestroyAllForUser(user.ID)
	a.invalidateUser(user.ID)
	return nil
}

// VerifyEmail consumes a verification token and stamps the account.
// Reused and expired tokens fail with the same message.
func (a *App) VerifyEmail(token string) (domain.User, error) {
	user, err := a.store.ConsumeToken(token, domain.TokenEmailVerification)
	if err != nil {
		if errors.Is(err, store.ErrTokenInvalid) {
			return domain.User{}, errBadToken
		}
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "consume verification token", err)
	}
	updated, err := a.store.MarkEmailVerified(user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, errBadToken
		}
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "mark email verified", err)
	}
	a.invalidateUser(user.ID)

	msg, merr := appmail.WelcomeMessage(updated.Email, updated.Name, a.frontendURL)
	a.sendMail(msg, merr, "verify_email")
	return updated, nil
}

// UserFromAccessToken resolves the account behind a bearer token.
func (a *App) UserFromAccessToken(token string) (domain.User, error) {
	userID, err := a.tokens.VerifyAccess(token)
	if err != nil {
		return domain.User{}, apperr.Wrap(apperr.KindUnauthorized, "invalid access token", err)
	}
	user, ok, err := a.getUser(userID)
	if err != nil {
		return domain.User{}, apperr.Wrap(apperr.KindInternal, "look up user", err)
	}
	if !ok {
		return domain.User{}, apperr.New(apperr.KindUnauthorized, "invalid access token")
	}
	return user, nil
}

// getUser is the cache-aside read for accounts.
func (a *App) getUser(id string) (domain.User, bool, error) {
	var cached domain.User
	if hit, err := a.cache.Get(cache.UserKey(id), &cached); err == nil && hit {
		return cached, true, nil
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil || !ok {
		return domain.User{}, ok, err
	}
	if err := a.cache.Set(cache.UserKey(id), user, cache.UserTTL); err != nil {
		a.logger.Warn("cache user failed", "user_id", id, "error", err)
	}
	return user, true, nil
}

func (a *App) invalidateUser(id string) {
	if err := a.cache.Delete(cache.UserKey(id)); err != nil {
		a.logger.Warn("invalidate user cache failed", "user_id", id, "error", err)
	}
	if _, err := a.cache.DeleteByPattern(cache.StatsPattern); err != nil {
		a.logger.Warn("invalidate stats cache failed", "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validateRegistration(name, email, password string) map[string]string {
	details := map[string]string{}
	if name == "" {
		details["name"] = "name is required"
	}
	if !validEmail(email) {
		details["email"] = "a valid email address is required"
	}
	if err := auth.ValidatePassword(password); err != nil {
		details["password"] = err.Error()
	}
	return details
}
