// Package httpserver exposes the file manager over HTTP: session auth,
// browsing, streaming, uploads, shares, and the admin API.
package httpserver

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"gracedisk/internal/auth"
	"gracedisk/internal/browse"
	"gracedisk/internal/config"
	"gracedisk/internal/logger"
	"gracedisk/internal/principal"
	"gracedisk/internal/quota"
	"gracedisk/internal/share"
	"gracedisk/internal/store"
	"gracedisk/internal/upload"
)

type Server struct {
	cfg      *config.Config
	log      logger.Logger
	db       *store.Store
	sessions *auth.Sessions
	tokens   *share.Tokens
	saver    *upload.Saver

	// heavy bounds concurrent archive builds and full-file downloads.
	heavy *semaphore.Weighted
}

func New(cfg *config.Config, db *store.Store, log logger.Logger) *Server {
	sessions := auth.New(db, cfg, log)
	return &Server{
		cfg:      cfg,
		log:      log,
		db:       db,
		sessions: sessions,
		tokens:   share.New(db, sessions.RootFor, cfg.MaxShareDays),
		saver:    upload.New(),
		heavy:    semaphore.NewWeighted(cfg.HeavyWorkers),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	// sessions
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/visitor", s.handleVisitorLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/change_password", s.handleChangePassword)

	// browsing and file operations
	mux.HandleFunc("/api/list", s.handleList)
	mux.HandleFunc("/download/", s.handleDownload)
	mux.HandleFunc("/filedata/", s.handleFileData)
	mux.HandleFunc("/thumb", s.handleThumb)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/delete", s.handleDelete)
	mux.HandleFunc("/api/batch_delete", s.handleBatchDelete)
	mux.HandleFunc("/api/rename", s.handleRename)
	mux.HandleFunc("/api/mkdir", s.handleMkdir)
	mux.HandleFunc("/api/zip", s.handleZip)

	// shares
	mux.HandleFunc("/api/shares", s.handleShares)
	mux.HandleFunc("/api/shares/", s.handleShareDelete)
	mux.HandleFunc("/share/", s.handleSharedDownload)

	// history and admin
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/record_download", s.handleRecordDownload)
	mux.HandleFunc("/api/users", s.handleUsers)
	mux.HandleFunc("/api/users/", s.handleUserByID)
	mux.HandleFunc("/api/stats", s.handleStats)

	// WebDAV, scoped to the principal's root
	mux.Handle("/dav/", s.davHandler())

	return withHeaders(s.sessions.Middleware(s.passwordGate(mux)))
}

// passwordGate blocks accounts flagged for a forced password change from
// everything except changing it or leaving.
func (s *Server) passwordGate(next http.Handler) http.Handler {
	allowed := map[string]bool{
		"/api/change_password": true,
		"/api/logout":          true,
		"/api/login":           true,
		"/healthz":             true,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.FromContext(r.Context()); ok && p.MustChangePassword && !allowed[r.URL.Path] {
			writeError(w, http.StatusForbidden, "password change required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// principalOr401 extracts the session principal or ends the request.
func (s *Server) principalOr401(w http.ResponseWriter, r *http.Request) (principal.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return principal.Principal{}, false
	}
	return p, true
}

func (s *Server) adminOr403(w http.ResponseWriter, r *http.Request) (principal.Principal, bool) {
	p, ok := s.principalOr401(w, r)
	if !ok {
		return principal.Principal{}, false
	}
	if !p.IsAdmin() {
		writeError(w, http.StatusForbidden, "administrator access required")
		return principal.Principal{}, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps package errors onto HTTP statuses. Confinement
// failures surface as plain not-found so path guessing reveals nothing.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var qe *quota.ExceededError
	switch {
	case errors.Is(err, browse.ErrNotFound),
		errors.Is(err, upload.ErrNotFound),
		errors.Is(err, share.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, share.ErrExpired):
		writeError(w, http.StatusGone, "share expired")
	case errors.Is(err, share.ErrPasswordRequired), errors.Is(err, share.ErrPasswordWrong):
		// The two cases must be indistinguishable from outside.
		writeError(w, http.StatusUnauthorized, "password required")
	case errors.Is(err, share.ErrDirectory),
		errors.Is(err, share.ErrDurationTooLong),
		errors.Is(err, upload.ErrBadFilename):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, upload.ErrForbidden), errors.Is(err, share.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.As(err, &qe):
		writeError(w, http.StatusRequestEntityTooLarge, qe.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// pathSuffix returns the URL path after prefix, decoded by the mux.
func pathSuffix(r *http.Request, prefix string) string {
	return strings.TrimPrefix(r.URL.Path, prefix)
}
