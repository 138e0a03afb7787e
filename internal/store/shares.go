package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Share is one row of the shares table: a capability token bound to a
// single file under its owner's root.
type Share struct {
	ID           int64
	Token        string
	FilePath     string // relative to the owner's root
	UserID       int64
	PasswordHash *string
	ExpiresAt    *time.Time // nil means never expires
	CreatedAt    time.Time
}

// ShareWithOwner joins in the owner fields needed to resolve the share's
// root and label listings. The only join the store performs.
type ShareWithOwner struct {
	Share
	OwnerUsername string
	OwnerIsAdmin  bool
}

const shareJoin = `SELECT s.id, s.token, s.file_path, s.user_id, s.password_hash, s.expires_at, s.created_at,
	u.username, u.is_admin
	FROM shares s JOIN users u ON s.user_id = u.id `

func scanShareWithOwner(scan func(dest ...any) error) (*ShareWithOwner, error) {
	var sw ShareWithOwner
	var pw sql.NullString
	var exp sql.NullTime
	err := scan(&sw.ID, &sw.Token, &sw.FilePath, &sw.UserID, &pw, &exp, &sw.CreatedAt,
		&sw.OwnerUsername, &sw.OwnerIsAdmin)
	if err != nil {
		return nil, err
	}
	if pw.Valid {
		sw.PasswordHash = &pw.String
	}
	if exp.Valid {
		t := exp.Time
		sw.ExpiresAt = &t
	}
	return &sw, nil
}

// CreateShare inserts a share and returns its id.
func (s *Store) CreateShare(ctx context.Context, sh Share) (int64, error) {
	var pw any
	if sh.PasswordHash != nil {
		pw = *sh.PasswordHash
	}
	var exp any
	if sh.ExpiresAt != nil {
		exp = sh.ExpiresAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO shares (token, file_path, user_id, password_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		sh.Token, sh.FilePath, sh.UserID, pw, exp, sh.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("creating share: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating share: %w", err)
	}
	return id, nil
}

// GetShareByToken returns the share with its owner, or nil when absent.
// Expiry is not evaluated here; dead shares stay in the table.
func (s *Store) GetShareByToken(ctx context.Context, token string) (*ShareWithOwner, error) {
	row := s.db.QueryRowContext(ctx, shareJoin+"WHERE s.token = ?", token)
	sw, err := scanShareWithOwner(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding share by token: %w", err)
	}
	return sw, nil
}

// ListShares returns all shares, newest first.
func (s *Store) ListShares(ctx context.Context) ([]ShareWithOwner, error) {
	return s.listShares(ctx, shareJoin+"ORDER BY s.created_at DESC")
}

// ListSharesForUser returns one owner's shares, newest first.
func (s *Store) ListSharesForUser(ctx context.Context, userID int64) ([]ShareWithOwner, error) {
	return s.listShares(ctx, shareJoin+"WHERE s.user_id = ? ORDER BY s.created_at DESC", userID)
}

func (s *Store) listShares(ctx context.Context, query string, args ...any) ([]ShareWithOwner, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	var shares []ShareWithOwner
	for rows.Next() {
		sw, err := scanShareWithOwner(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("listing shares: %w", err)
		}
		shares = append(shares, *sw)
	}
	return shares, rows.Err()
}

// DeleteShare removes a share unconditionally (administrator path).
// Returns the number of rows removed.
func (s *Store) DeleteShare(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shares WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("deleting share %d: %w", id, err)
	}
	return res.RowsAffected()
}

// DeleteShareOwned removes a share only if userID owns it. Returns the
// number of rows removed; zero means absent or not owned.
func (s *Store) DeleteShareOwned(ctx context.Context, id, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shares WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting share %d: %w", id, err)
	}
	return res.RowsAffected()
}

// CountShares returns total and still-live share counts.
func (s *Store) CountShares(ctx context.Context, now time.Time) (total, active int64, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shares").Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("counting shares: %w", err)
	}
	// Stored timestamps are UTC text; the comparison value must match.
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM shares WHERE expires_at IS NULL OR expires_at > ?", sqliteTime(now)).Scan(&active)
	if err != nil {
		return 0, 0, fmt.Errorf("counting active shares: %w", err)
	}
	return total, active, nil
}
