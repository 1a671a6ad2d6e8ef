package server

import (
	"net/http"
	"strconv"
	"strings"

	"bookshelf/pkg/domain"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		updated, err := s.app.UpdateUserName(user, req.Name)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	users, err := s.app.ListUsers(page, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.UserStats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, actor domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/users/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		user, err := s.app.GetUser(actor, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case sub == "" && r.Method == http.MethodDelete:
		if !actor.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if err := s.app.DeleteUser(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "admin.delete_user", "success", "target_id", id, "admin_id", actor.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	case sub == "toggle-admin" && r.Method == http.MethodPatch:
		if !actor.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		updated, err := s.app.ToggleAdmin(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "admin.toggle_admin", "success", "target_id", id, "admin_id", actor.ID, "is_admin", updated.IsAdmin)
		writeJSON(w, http.StatusOK, updated)

	case sub != "" && sub != "toggle-admin":
		http.NotFound(w, r)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request, actor domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Pattern string `json:"pattern"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	deleted, err := s.app.ClearCache(req.Pattern)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.cache_clear", "success", "admin_id", actor.ID, "deleted", deleted)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
