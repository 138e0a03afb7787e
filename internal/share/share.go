// Package share implements time-limited, optionally password-protected
// capability tokens granting unauthenticated access to single files.
package share

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gracedisk/internal/fsutil"
	"gracedisk/internal/principal"
	"gracedisk/internal/store"
)

var (
	// ErrNotFound covers absent tokens and shares whose file has since
	// been removed; the two are indistinguishable to callers.
	ErrNotFound = errors.New("share not found")
	ErrExpired  = errors.New("share expired")

	// ErrPasswordRequired and ErrPasswordWrong both surface as "enter
	// the password" to the outside; the split exists for logging only.
	ErrPasswordRequired = errors.New("share password required")
	ErrPasswordWrong    = errors.New("share password wrong")

	ErrDirectory       = errors.New("directories cannot be shared")
	ErrDurationTooLong = errors.New("share duration exceeds the allowed maximum")
	ErrForbidden       = errors.New("not allowed")
)

// RootResolver maps a share owner to the storage root their shared paths
// are confined to. Wired from config at startup.
type RootResolver func(ownerUsername string, ownerIsAdmin bool) string

// Tokens creates, resolves, lists, and deletes share tokens.
type Tokens struct {
	db      *store.Store
	rootFor RootResolver
	maxDays int
	now     func() time.Time
}

func New(db *store.Store, rootFor RootResolver, maxDays int) *Tokens {
	return &Tokens{db: db, rootFor: rootFor, maxDays: maxDays, now: time.Now}
}

// Resolved is a share that passed every gate: the token exists, is not
// expired, the password matched, and the file is still present.
type Resolved struct {
	Share         store.Share
	OwnerUsername string
	Path          fsutil.ConfinedPath
	Size          int64
}

// Create registers a share for a file under the owner's root and returns
// the opaque token. durationDays == 0 means the share never expires.
// Non-administrators are capped at the configured maximum duration.
func (t *Tokens) Create(ctx context.Context, owner principal.Principal, relPath, password string, durationDays int) (string, error) {
	if !owner.CanShare() {
		return "", ErrForbidden
	}
	if durationDays < 0 || (!owner.IsAdmin() && durationDays > t.maxDays) {
		return "", ErrDurationTooLong
	}

	cp, err := fsutil.Confine(owner.Root, relPath)
	if err != nil {
		return "", ErrNotFound
	}
	st, err := os.Stat(cp.Abs)
	if err != nil {
		return "", ErrNotFound
	}
	if st.IsDir() {
		return "", ErrDirectory
	}

	sh := store.Share{
		// 128-bit random token; collision is treated as impossible.
		Token:     uuid.NewString(),
		FilePath:  cp.Rel(),
		UserID:    owner.ID,
		CreatedAt: t.now().UTC(),
	}
	if durationDays > 0 {
		exp := t.now().UTC().Add(time.Duration(durationDays) * 24 * time.Hour)
		sh.ExpiresAt = &exp
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hashing share password: %w", err)
		}
		h := string(hash)
		sh.PasswordHash = &h
	}

	if _, err := t.db.CreateShare(ctx, sh); err != nil {
		return "", err
	}
	return sh.Token, nil
}

// Resolve validates a token and returns a readable location for the
// shared file. Expired shares are dead at read time but stay in the
// table. A set password must match on every resolution.
func (t *Tokens) Resolve(ctx context.Context, token, password string) (*Resolved, error) {
	sw, err := t.db.GetShareByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sw == nil {
		return nil, ErrNotFound
	}
	if sw.ExpiresAt != nil && t.now().After(*sw.ExpiresAt) {
		return nil, ErrExpired
	}
	if sw.PasswordHash != nil {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(*sw.PasswordHash), []byte(password)) != nil {
			return nil, ErrPasswordWrong
		}
	}

	root := t.rootFor(sw.OwnerUsername, sw.OwnerIsAdmin)
	cp, err := fsutil.Confine(root, sw.FilePath)
	if err != nil {
		return nil, ErrNotFound
	}
	st, err := os.Stat(cp.Abs)
	if err != nil || st.IsDir() {
		return nil, ErrNotFound
	}
	return &Resolved{
		Share:         sw.Share,
		OwnerUsername: sw.OwnerUsername,
		Path:          cp,
		Size:          st.Size(),
	}, nil
}

// Delete removes a share. Administrators may delete any share; owners
// only their own. The row is gone once this returns, whichever branch
// ran.
func (t *Tokens) Delete(ctx context.Context, requester principal.Principal, shareID int64) error {
	var n int64
	var err error
	if requester.IsAdmin() {
		n, err = t.db.DeleteShare(ctx, shareID)
	} else {
		n, err = t.db.DeleteShareOwned(ctx, shareID, requester.ID)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrForbidden
	}
	return nil
}

// ListFor returns the shares visible to the requester: everything for
// administrators, own shares otherwise.
func (t *Tokens) ListFor(ctx context.Context, requester principal.Principal) ([]store.ShareWithOwner, error) {
	if requester.IsAdmin() {
		return t.db.ListShares(ctx)
	}
	return t.db.ListSharesForUser(ctx, requester.ID)
}
