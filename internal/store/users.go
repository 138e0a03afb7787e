package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateUsername is returned when creating a user whose name is
// already taken.
var ErrDuplicateUsername = errors.New("username already taken")

// User is one row of the users table.
type User struct {
	ID                 int64
	Username           string
	PasswordHash       string
	IsAdmin            bool
	QuotaGB            int64
	CanLogin           bool
	MustChangePassword bool
}

// QuotaBytes converts the stored gigabyte quota to bytes.
func (u User) QuotaBytes() int64 { return u.QuotaGB << 30 }

const userColumns = "id, username, password_hash, is_admin, quota_gb, can_login, must_change_password"

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.QuotaGB, &u.CanLogin, &u.MustChangePassword)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns the user or nil when absent.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("finding user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername returns the user or nil when absent.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("finding user %q: %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a new account and returns it with its assigned id.
func (s *Store) CreateUser(ctx context.Context, u User) (*User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, is_admin, quota_gb, can_login, must_change_password) VALUES (?, ?, ?, ?, ?, ?)",
		u.Username, u.PasswordHash, u.IsAdmin, u.QuotaGB, u.CanLogin, u.MustChangePassword)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("creating user %q: %w", u.Username, err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating user %q: %w", u.Username, err)
	}
	return &u, nil
}

// EnsureAdmin inserts the seed administrator account if no user with
// that name exists. New installs get must_change_password set.
func (s *Store) EnsureAdmin(ctx context.Context, username, passwordHash string) error {
	existing, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.CreateUser(ctx, User{
		Username:           username,
		PasswordHash:       passwordHash,
		IsAdmin:            true,
		CanLogin:           true,
		MustChangePassword: true,
	})
	return err
}

// ListNonAdminUsers returns every regular account, for the management
// view.
func (s *Store) ListNonAdminUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE is_admin = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.QuotaGB, &u.CanLogin, &u.MustChangePassword); err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserQuota sets the gigabyte quota for one account.
func (s *Store) UpdateUserQuota(ctx context.Context, id, quotaGB int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET quota_gb = ? WHERE id = ?", quotaGB, id); err != nil {
		return fmt.Errorf("updating quota for user %d: %w", id, err)
	}
	return nil
}

// UpdateUserCanLogin enables or disables an account without touching
// its data or shares.
func (s *Store) UpdateUserCanLogin(ctx context.Context, id int64, canLogin bool) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET can_login = ? WHERE id = ?", canLogin, id); err != nil {
		return fmt.Errorf("updating login flag for user %d: %w", id, err)
	}
	return nil
}

// UpdateUserPassword replaces the password hash and records whether the
// user must change it on next login.
func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string, mustChange bool) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, must_change_password = ? WHERE id = ?",
		passwordHash, mustChange, id); err != nil {
		return fmt.Errorf("updating password for user %d: %w", id, err)
	}
	return nil
}

// DeleteUser removes the account row. The caller is responsible for the
// user's storage directory.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	return nil
}
