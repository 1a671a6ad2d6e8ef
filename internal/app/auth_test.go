package app

import (
	"errors"
	"testing"

	"bookshelf/pkg/apperr"
)

func TestRegisterAndVerifyEmail(t *testing.T) {
	env := newTestEnv(t)

	res := env.register(t, "Alice", "alice@example.com")
	if res.User.EmailVerifiedAt != nil {
		t.Fatalf("new account should start unverified")
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatalf("registration should issue a token pair")
	}
	if res.SessionID == "" {
		t.Fatalf("registration should open a session")
	}

	token := tokenFromMail(t, env.mail.last(t))
	user, err := env.app.VerifyEmail(token)
	if err != nil {
		t.Fatalf("verify email: %v", err)
	}
	if user.EmailVerifiedAt == nil {
		t.Fatalf("verification should stamp the account")
	}

	// The token is single use.
	if _, err := env.app.VerifyEmail(token); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("reused token should be rejected, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.app.Register("Bob", "not-an-email", "weak", "", "")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Details["email"] == "" || appErr.Details["password"] == "" {
		t.Fatalf("expected field details, got %+v", appErr)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Alice", "alice@example.com")

	_, err := env.app.Register("Alice Again", "Alice@Example.com", "Aa123456", "", "")
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestLoginUniformRejection(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Alice", "alice@example.com")

	_, errUnknown := env.app.Login("nobody@example.com", "Aa123456", "", "")
	_, errWrongPw := env.app.Login("alice@example.com", "Bb123456", "", "")
	if errUnknown == nil || errWrongPw == nil {
		t.Fatalf("both logins should fail")
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("unknown-email and wrong-password must read the same: %q vs %q",
			errUnknown.Error(), errWrongPw.Error())
	}
	if apperr.KindOf(errUnknown) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", errUnknown)
	}
}

func TestLoginRecordsLastLogin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Alice", "alice@example.com")

	res, err := env.app.Login("alice@example.com", "Aa123456", "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.LastLoginAt == nil {
		t.Fatalf("login should record last-login time")
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "Alice", "alice@example.com")

	pair, err := env.app.Refresh(res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replaying the rotated-out token fails; the new one still works.
	if _, err := env.app.Refresh(res.Tokens.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("replayed refresh token should be rejected, got %v", err)
	}
	if _, err := env.app.Refresh(pair.RefreshToken); err != nil {
		t.Fatalf("fresh refresh token should work: %v", err)
	}
}

func TestLogoutBlacklistsTokens(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "Alice", "alice@example.com")

	if err := env.app.Logout(res.Tokens.AccessToken, res.Tokens.RefreshToken, res.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.app.UserFromAccessToken(res.Tokens.AccessToken); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("access token should be dead after logout, got %v", err)
	}
	if _, err := env.app.Refresh(res.Tokens.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("refresh token should be dead after logout, got %v", err)
	}
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Alice", "alice@example.com")
	sent := len(env.mail.messages)

	if err := env.app.ForgotPassword("nobody@example.com"); err != nil {
		t.Fatalf("forgot password for unknown email should succeed: %v", err)
	}
	if len(env.mail.messages) != sent {
		t.Fatalf("no mail should be sent for unknown accounts")
	}

	if err := env.app.ForgotPassword("alice@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	if len(env.mail.messages) != sent+1 {
		t.Fatalf("reset mail should be sent for known accounts")
	}
}

func TestResetPasswordRevokesEverything(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "Alice", "alice@example.com")

	if err := env.app.ForgotPassword("alice@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	token := tokenFromMail(t, env.mail.last(t))

	if err := env.app.ResetPassword(token, "Cc123456"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	// Old password dead, new one live.
	if _, err := env.app.Login("alice@example.com", "Aa123456", "", ""); err == nil {
		t.Fatalf("old password should no longer work")
	}
	if _, err := env.app.Login("alice@example.com", "Cc123456", "", ""); err != nil {
		t.Fatalf("new password should work: %v", err)
	}

	// The reset token is burned and prior sessions are gone.
	if err := env.app.ResetPassword(token, "Dd123456"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("reused reset token should be rejected, got %v", err)
	}
	if env.redis.Exists("session:" + res.SessionID) {
		t.Fatalf("sessions should be destroyed on password reset")
	}
}

func TestResetPasswordRejectsWeakAndBogus(t *testing.T) {
	env := newTestEnv(t)

	if err := env.app.ResetPassword("deadbeef", "Aa123456"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bogus token should be rejected, got %v", err)
	}
	if err := env.app.ResetPassword("deadbeef", "short"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("weak password should be rejected, got %v", err)
	}
}

func TestUserFromAccessToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "Alice", "alice@example.com")

	user, err := env.app.UserFromAccessToken(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("resolve access token: %v", err)
	}
	if user.ID != res.User.ID {
		t.Fatalf("wrong user resolved: %s != %s", user.ID, res.User.ID)
	}

	if _, err := env.app.UserFromAccessToken(res.Tokens.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("refresh token must not pass as access token, got %v", err)
	}
}
