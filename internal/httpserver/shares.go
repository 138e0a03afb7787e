package httpserver

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"gracedisk/internal/store"
	"gracedisk/internal/stream"
)

type shareItem struct {
	ID        int64      `json:"id"`
	Token     string     `json:"token"`
	Path      string     `json:"path"`
	Owner     string     `json:"owner"`
	Protected bool       `json:"protected"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		shares, err := s.tokens.ListFor(r.Context(), p)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		items := make([]shareItem, 0, len(shares))
		for _, sh := range shares {
			items = append(items, shareItem{
				ID:        sh.ID,
				Token:     sh.Token,
				Path:      sh.FilePath,
				Owner:     sh.OwnerUsername,
				Protected: sh.PasswordHash != nil,
				CreatedAt: sh.CreatedAt,
				ExpiresAt: sh.ExpiresAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"shares": items})

	case http.MethodPost:
		var req struct {
			Path         string `json:"path"`
			Password     string `json:"password"`
			DurationDays int    `json:"duration_days"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		token, err := s.tokens.Create(r.Context(), p, req.Path, req.Password, req.DurationDays)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   token,
			"url":     "/share/" + token,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleShareDelete(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(pathSuffix(r, "/api/shares/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad share id")
		return
	}
	if err := s.tokens.Delete(r.Context(), p, id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSharedDownload serves a shared file to anyone holding the token.
// The password, when set, travels as a query parameter so media tags can
// stream protected shares too.
func (s *Server) handleSharedDownload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	token := pathSuffix(r, "/share/")
	if token == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	res, err := s.tokens.Resolve(r.Context(), token, r.URL.Query().Get("password"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.heavy.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "server busy")
		return
	}
	defer s.heavy.Release(1)

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.Path.Abs)))
	_, serr := stream.ServeFile(r.Context(), w, res.Path.Abs, r.Header.Get("Range"))
	s.recordOp(r, res.Share.UserID, store.OpDownload, res.Share.FilePath, res.Size, serr)
}
