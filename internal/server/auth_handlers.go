package server

import (
	"encoding/json"
	"io"
	"net/http"

	"bookshelf/internal/app"
	"bookshelf/internal/util"
	"bookshelf/pkg/authtoken"
	"bookshelf/pkg/domain"
)

const maxJSONBody = 1 << 20

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type authResponse struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	SessionID    string      `json:"sessionId,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func newAuthResponse(res app.AuthResult) authResponse {
	return authResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		SessionID:    res.SessionID,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many registration attempts") {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "auth.register", "fail", "reason", "invalid_json")
		return
	}
	res, err := s.app.Register(req.Name, req.Email, req.Password, util.ClientIP(r), r.UserAgent())
	if err != nil {
		s.audit(r, "auth.register", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", res.User.ID)
	writeJSON(w, http.StatusCreated, newAuthResponse(res))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many login attempts") {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "auth.login", "fail", "reason", "invalid_json")
		return
	}
	res, err := s.app.Login(req.Email, req.Password, util.ClientIP(r), r.UserAgent())
	if err != nil {
		s.audit(r, "auth.login", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", res.User.ID)
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many refresh attempts") {
		return
	}
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := s.app.Refresh(req.RefreshToken)
	if err != nil {
		s.audit(r, "auth.refresh", "fail")
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	access, _ := bearerToken(r)
	var req logoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Logout(access, req.RefreshToken, req.SessionID); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many password reset attempts") {
		return
	}
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Always 200 so the endpoint cannot confirm account existence.
	_ = s.app.ForgotPassword(req.Email)
	s.audit(r, "auth.forgot_password", "success")
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "if the account exists, a reset email has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many password reset attempts") {
		return
	}
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ResetPassword(req.Token, req.Password); err != nil {
		s.audit(r, "auth.reset_password", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.reset_password", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req verifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.VerifyEmail(req.Token)
	if err != nil {
		s.audit(r, "auth.verify_email", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.verify_email", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func newTokenResponse(pair authtoken.Pair) tokenResponse {
	return tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
}
