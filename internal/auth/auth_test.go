package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gracedisk/internal/config"
	"gracedisk/internal/logger"
	"gracedisk/internal/principal"
	"gracedisk/internal/store"
)

func newFixture(t *testing.T, allowVisitor bool) (*Sessions, *store.Store) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := t.TempDir()
	cfg := &config.Config{
		StoragePath:        filepath.Join(base, "storage"),
		VisitorStoragePath: filepath.Join(base, "visitor"),
		UserFilesPath:      filepath.Join(base, "userfiles"),
		AllowVisitor:       allowVisitor,
	}
	return New(db, cfg, logger.NewNopLogger()), db
}

func seedUser(t *testing.T, db *store.Store, username, password string, admin bool) *store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := db.CreateUser(context.Background(), store.User{
		Username: username, PasswordHash: string(hash), IsAdmin: admin, QuotaGB: 5, CanLogin: true,
	})
	require.NoError(t, err)
	return u
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials open a session", func(t *testing.T) {
		s, db := newFixture(t, false)
		seedUser(t, db, "alice", "hunter2-long", false)

		id, p, err := s.Login(ctx, "alice", "hunter2-long", "127.0.0.1", "test")
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, principal.RegisteredUser, p.Role)
		assert.EqualValues(t, 5<<30, p.QuotaBytes)
		assert.Contains(t, p.Root, "alice")

		got, ok := s.Lookup(ctx, id)
		require.True(t, ok)
		assert.Equal(t, p.ID, got.ID)

		counts, err := db.LoginCountsSince(ctx, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, counts["user"])
	})

	t.Run("wrong password and unknown user look identical", func(t *testing.T) {
		s, db := newFixture(t, false)
		seedUser(t, db, "alice", "hunter2-long", false)

		_, _, err := s.Login(ctx, "alice", "wrong", "", "")
		assert.ErrorIs(t, err, ErrBadCredentials)
		_, _, err = s.Login(ctx, "nobody", "whatever", "", "")
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("disabled account cannot log in", func(t *testing.T) {
		s, db := newFixture(t, false)
		u := seedUser(t, db, "bob", "hunter2-long", false)
		require.NoError(t, db.UpdateUserCanLogin(ctx, u.ID, false))

		_, _, err := s.Login(ctx, "bob", "hunter2-long", "", "")
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("admin root is the unrestricted storage path", func(t *testing.T) {
		s, db := newFixture(t, false)
		seedUser(t, db, "root", "hunter2-long", true)

		_, p, err := s.Login(ctx, "root", "hunter2-long", "", "")
		require.NoError(t, err)
		assert.Equal(t, principal.Administrator, p.Role)
		assert.Equal(t, s.cfg.StoragePath, p.Root)
	})
}

func TestVisitor(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		s, _ := newFixture(t, false)
		_, _, err := s.LoginVisitor(ctx, "", "")
		assert.ErrorIs(t, err, ErrVisitorDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		s, _ := newFixture(t, true)
		id, p, err := s.LoginVisitor(ctx, "", "")
		require.NoError(t, err)
		assert.Equal(t, principal.Visitor, p.Role)
		assert.EqualValues(t, principal.VisitorID, p.ID)
		assert.False(t, p.CanUpload())

		got, ok := s.Lookup(ctx, id)
		require.True(t, ok)
		assert.Equal(t, principal.Visitor, got.Role)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	s, db := newFixture(t, false)
	seedUser(t, db, "alice", "hunter2-long", false)

	id, _, err := s.Login(ctx, "alice", "hunter2-long", "", "")
	require.NoError(t, err)

	s.Logout(id)
	_, ok := s.Lookup(ctx, id)
	assert.False(t, ok)

	// Unknown ids are a no-op.
	s.Logout("never-existed")
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	s, db := newFixture(t, false)
	u := seedUser(t, db, "alice", "hunter2-long", false)

	assert.ErrorIs(t, s.ChangePassword(ctx, u.ID, "hunter2-long", "short"), ErrWeakPassword)
	assert.ErrorIs(t, s.ChangePassword(ctx, u.ID, "wrong", "new-password"), ErrWrongPassword)

	require.NoError(t, s.ChangePassword(ctx, u.ID, "hunter2-long", "new-password"))
	_, _, err := s.Login(ctx, "alice", "new-password", "", "")
	assert.NoError(t, err)
	_, _, err = s.Login(ctx, "alice", "hunter2-long", "", "")
	assert.ErrorIs(t, err, ErrBadCredentials)
}
