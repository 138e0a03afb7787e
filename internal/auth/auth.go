// Package auth implements cookie sessions, password verification, and
// per-request principal resolution.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"gracedisk/internal/config"
	"gracedisk/internal/logger"
	"gracedisk/internal/principal"
	"gracedisk/internal/store"
)

const (
	// CookieName carries the opaque session id.
	CookieName = "gracedisk_session"

	// MinPasswordLen applies to password changes, not to seeded accounts.
	MinPasswordLen = 8
)

var (
	// ErrBadCredentials covers unknown users, wrong passwords, and
	// disabled accounts alike; callers must not tell them apart.
	ErrBadCredentials = errors.New("invalid username or password")

	ErrVisitorDisabled = errors.New("visitor access is disabled")
	ErrWeakPassword    = errors.New("password too short")
	ErrWrongPassword   = errors.New("current password does not match")
)

type ctxKey int

const principalKey ctxKey = 0

// FromContext returns the principal attached by Middleware. ok is false
// on unauthenticated requests.
func FromContext(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(principalKey).(principal.Principal)
	return p, ok
}

func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Sessions maps opaque cookie ids to user ids. Principals are rebuilt
// from the database on every lookup, so quota and role changes take
// effect on the next request without invalidating the session.
type Sessions struct {
	db  *store.Store
	cfg *config.Config
	log logger.Logger

	mu     sync.Mutex
	active map[string]int64
}

func New(db *store.Store, cfg *config.Config, log logger.Logger) *Sessions {
	return &Sessions{db: db, cfg: cfg, log: log, active: make(map[string]int64)}
}

// RootFor returns the storage root for a username, creating per-user
// directories on demand. Administrators browse the unrestricted root.
func (s *Sessions) RootFor(username string, isAdmin bool) string {
	if isAdmin {
		return s.cfg.StoragePath
	}
	root := filepath.Join(s.cfg.UserFilesPath, username)
	if err := os.MkdirAll(root, 0o755); err != nil {
		s.log.Error("creating user root", "user", username, "error", err)
	}
	return root
}

// Login verifies credentials and opens a session. The login is recorded
// fire and forget: an audit failure is logged and the login succeeds.
func (s *Sessions) Login(ctx context.Context, username, password, ip, userAgent string) (string, principal.Principal, error) {
	u, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return "", principal.Principal{}, err
	}
	if u == nil || !u.CanLogin {
		return "", principal.Principal{}, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", principal.Principal{}, ErrBadCredentials
	}

	id, err := newSessionID()
	if err != nil {
		return "", principal.Principal{}, err
	}
	s.mu.Lock()
	s.active[id] = u.ID
	s.mu.Unlock()

	loginType := "user"
	if u.IsAdmin {
		loginType = "admin"
	}
	if err := s.db.InsertLoginLog(ctx, store.LoginLog{
		UserID: u.ID, Username: u.Username, LoginType: loginType, IPAddress: ip, UserAgent: userAgent,
	}); err != nil {
		s.log.Warn("login audit failed", "user", u.Username, "error", err)
	}

	return id, s.principalFor(u), nil
}

// LoginVisitor opens an anonymous read-only session when visitor access
// is enabled.
func (s *Sessions) LoginVisitor(ctx context.Context, ip, userAgent string) (string, principal.Principal, error) {
	if !s.cfg.AllowVisitor {
		return "", principal.Principal{}, ErrVisitorDisabled
	}
	id, err := newSessionID()
	if err != nil {
		return "", principal.Principal{}, err
	}
	s.mu.Lock()
	s.active[id] = principal.VisitorID
	s.mu.Unlock()

	if err := s.db.InsertLoginLog(ctx, store.LoginLog{
		UserID: principal.VisitorID, Username: "visitor", LoginType: "visitor", IPAddress: ip, UserAgent: userAgent,
	}); err != nil {
		s.log.Warn("login audit failed", "user", "visitor", "error", err)
	}

	return id, s.visitorPrincipal(), nil
}

// Logout drops the session. Unknown ids are a no-op.
func (s *Sessions) Logout(sessionID string) {
	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()
}

// Lookup resolves a session id to a fresh principal. Sessions whose user
// vanished or lost login rights are dropped on the spot.
func (s *Sessions) Lookup(ctx context.Context, sessionID string) (principal.Principal, bool) {
	s.mu.Lock()
	uid, ok := s.active[sessionID]
	s.mu.Unlock()
	if !ok {
		return principal.Principal{}, false
	}
	if uid == principal.VisitorID {
		if !s.cfg.AllowVisitor {
			s.Logout(sessionID)
			return principal.Principal{}, false
		}
		return s.visitorPrincipal(), true
	}

	u, err := s.db.GetUserByID(ctx, uid)
	if err != nil || u == nil || !u.CanLogin {
		s.Logout(sessionID)
		return principal.Principal{}, false
	}
	return s.principalFor(u), true
}

// ChangePassword verifies the current password and installs a new one,
// clearing any forced-change flag.
func (s *Sessions) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < MinPasswordLen {
		return ErrWeakPassword
	}
	u, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.UpdateUserPassword(ctx, userID, string(hash), false)
}

// Middleware attaches the session's principal to the request context.
// Requests without a valid session pass through unauthenticated; access
// decisions belong to the handlers.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CookieName); err == nil {
			if p, ok := s.Lookup(r.Context(), c.Value); ok {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Sessions) principalFor(u *store.User) principal.Principal {
	role := principal.RegisteredUser
	if u.IsAdmin {
		role = principal.Administrator
	}
	return principal.Principal{
		ID:                 u.ID,
		Username:           u.Username,
		Role:               role,
		Root:               s.RootFor(u.Username, u.IsAdmin),
		QuotaBytes:         u.QuotaBytes(),
		MustChangePassword: u.MustChangePassword,
	}
}

func (s *Sessions) visitorPrincipal() principal.Principal {
	return principal.Principal{
		ID:       principal.VisitorID,
		Username: "visitor",
		Role:     principal.Visitor,
		Root:     s.cfg.VisitorStoragePath,
	}
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
