package httpserver

import (
	"errors"
	"net/http"

	"gracedisk/internal/auth"
	"gracedisk/internal/principal"
)

func sessionCookie(id string) *http.Cookie {
	c := &http.Cookie{
		Name:     auth.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if id == "" {
		c.MaxAge = -1
	}
	return c
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	id, p, err := s.sessions.Login(r.Context(), req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.writeDomainError(w, err)
		return
	}

	http.SetCookie(w, sessionCookie(id))
	writeJSON(w, http.StatusOK, map[string]any{
		"username":             p.Username,
		"is_admin":             p.IsAdmin(),
		"must_change_password": p.MustChangePassword,
	})
}

func (s *Server) handleVisitorLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, p, err := s.sessions.LoginVisitor(r.Context(), clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrVisitorDisabled) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.writeDomainError(w, err)
		return
	}
	http.SetCookie(w, sessionCookie(id))
	writeJSON(w, http.StatusOK, map[string]any{"username": p.Username, "is_admin": false})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if c, err := r.Cookie(auth.CookieName); err == nil {
		s.sessions.Logout(c.Value)
	}
	http.SetCookie(w, sessionCookie(""))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	if p.Role == principal.Visitor {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := s.sessions.ChangePassword(r.Context(), p.ID, req.Current, req.New); err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrWrongPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeDomainError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
