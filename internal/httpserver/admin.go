package httpserver

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gracedisk/internal/auth"
	"gracedisk/internal/store"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	ops, err := s.db.ListFileOperations(r.Context(), p.ID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	type histItem struct {
		Operation string    `json:"operation"`
		Path      string    `json:"path"`
		Size      int64     `json:"size"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"created_at"`
	}
	items := make([]histItem, 0, len(ops))
	for _, op := range ops {
		items = append(items, histItem{
			Operation: op.OperationType,
			Path:      op.FilePath,
			Size:      op.FileSize,
			Status:    op.Status,
			CreatedAt: op.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

// handleRecordDownload lets the client report downloads it performed
// through object URLs the server never saw complete.
func (s *Server) handleRecordDownload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := s.principalOr401(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
		Size int64  `json:"size"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	s.recordOp(r, p.ID, store.OpDownload, req.Path, req.Size, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type userItem struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	QuotaGB  int64  `json:"quota_gb"`
	CanLogin bool   `json:"can_login"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	_, ok := s.adminOr403(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := s.db.ListNonAdminUsers(r.Context())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		items := make([]userItem, 0, len(users))
		for _, u := range users {
			items = append(items, userItem{ID: u.ID, Username: u.Username, QuotaGB: u.QuotaGB, CanLogin: u.CanLogin})
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": items})

	case http.MethodPost:
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			QuotaGB  int64  `json:"quota_gb"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if req.Username == "" || len(req.Password) < auth.MinPasswordLen {
			writeError(w, http.StatusBadRequest, "username and a password of at least 8 characters are required")
			return
		}
		if req.QuotaGB <= 0 {
			req.QuotaGB = s.cfg.DefaultQuotaGB
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		u, err := s.db.CreateUser(r.Context(), store.User{
			Username:     req.Username,
			PasswordHash: string(hash),
			QuotaGB:      req.QuotaGB,
			CanLogin:     true,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicateUsername) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": u.ID})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminOr403(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(pathSuffix(r, "/api/users/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	target, err := s.db.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			QuotaGB  *int64  `json:"quota_gb"`
			CanLogin *bool   `json:"can_login"`
			Password *string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if req.QuotaGB != nil {
			if *req.QuotaGB < 0 {
				writeError(w, http.StatusBadRequest, "quota must not be negative")
				return
			}
			if err := s.db.UpdateUserQuota(r.Context(), id, *req.QuotaGB); err != nil {
				s.writeDomainError(w, err)
				return
			}
		}
		if req.CanLogin != nil {
			if err := s.db.UpdateUserCanLogin(r.Context(), id, *req.CanLogin); err != nil {
				s.writeDomainError(w, err)
				return
			}
		}
		if req.Password != nil {
			if len(*req.Password) < auth.MinPasswordLen {
				writeError(w, http.StatusBadRequest, "password too short")
				return
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			// Admin resets hand out a temporary password; the user picks
			// their own on next login.
			if err := s.db.UpdateUserPassword(r.Context(), id, string(hash), true); err != nil {
				s.writeDomainError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case http.MethodDelete:
		if target.IsAdmin || id == admin.ID {
			writeError(w, http.StatusForbidden, "administrator accounts cannot be deleted")
			return
		}
		if err := s.db.DeleteUser(r.Context(), id); err != nil {
			s.writeDomainError(w, err)
			return
		}
		// The user's directory goes with the account.
		userRoot := filepath.Join(s.cfg.UserFilesPath, target.Username)
		if err := os.RemoveAll(userRoot); err != nil {
			s.log.Warn("removing user directory failed", "user", target.Username, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := s.adminOr403(w, r); !ok {
		return
	}
	ctx := r.Context()
	now := time.Now()
	monthAgo := now.Add(-30 * 24 * time.Hour)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	totalUsers, activeUsers, err := s.db.CountUsers(ctx)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	totalShares, activeShares, err := s.db.CountShares(ctx, now)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	ops, err := s.db.OperationTotalsSince(ctx, monthAgo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	logins, err := s.db.LoginCountsSince(ctx, midnight)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":      map[string]int64{"total": totalUsers, "active": activeUsers},
		"shares":     map[string]int64{"total": totalShares, "active": activeShares},
		"operations": ops,
		"logins":     logins,
	})
}
