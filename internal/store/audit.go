package store

import (
	"context"
	"fmt"
	"time"
)

// sqliteTime renders a timestamp the way CURRENT_TIMESTAMP stores it,
// so range comparisons against default-valued columns stay lexicographic.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// Operation kinds and statuses recorded in file_operations.
const (
	OpUpload   = "upload"
	OpDownload = "download"

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// FileOperation is one append-only audit row. Rows are never updated or
// deleted.
type FileOperation struct {
	ID            int64
	UserID        int64
	OperationType string
	FilePath      string
	FileSize      int64
	Status        string
	CreatedAt     time.Time
}

// LoginLog is one append-only authentication record.
type LoginLog struct {
	ID        int64
	UserID    int64
	Username  string
	LoginType string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// InsertFileOperation appends an upload/download record. Callers treat
// failures as fire-and-forget: log and move on, never block the primary
// operation.
func (s *Store) InsertFileOperation(ctx context.Context, op FileOperation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO file_operations (user_id, operation_type, file_path, file_size, status) VALUES (?, ?, ?, ?, ?)",
		op.UserID, op.OperationType, op.FilePath, op.FileSize, op.Status)
	if err != nil {
		return fmt.Errorf("recording %s of %q: %w", op.OperationType, op.FilePath, err)
	}
	return nil
}

// ListFileOperations returns the newest records for one user.
func (s *Store) ListFileOperations(ctx context.Context, userID int64, limit int) ([]FileOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, operation_type, file_path, file_size, status, created_at FROM file_operations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing file operations: %w", err)
	}
	defer rows.Close()

	var ops []FileOperation
	for rows.Next() {
		var op FileOperation
		if err := rows.Scan(&op.ID, &op.UserID, &op.OperationType, &op.FilePath, &op.FileSize, &op.Status, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("listing file operations: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// InsertLoginLog appends an authentication record. Same fire-and-forget
// policy as InsertFileOperation.
func (s *Store) InsertLoginLog(ctx context.Context, l LoginLog) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO login_logs (user_id, username, login_type, ip_address, user_agent) VALUES (?, ?, ?, ?, ?)",
		l.UserID, l.Username, l.LoginType, l.IPAddress, l.UserAgent)
	if err != nil {
		return fmt.Errorf("recording login for %q: %w", l.Username, err)
	}
	return nil
}

// OperationTotals aggregates count and byte volume per operation kind.
type OperationTotals struct {
	Count      int64 `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// OperationTotalsSince aggregates file operations newer than since,
// keyed by operation kind.
func (s *Store) OperationTotalsSince(ctx context.Context, since time.Time) (map[string]OperationTotals, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT operation_type, COUNT(*), COALESCE(SUM(file_size), 0) FROM file_operations WHERE created_at >= ? GROUP BY operation_type",
		sqliteTime(since))
	if err != nil {
		return nil, fmt.Errorf("aggregating file operations: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]OperationTotals)
	for rows.Next() {
		var kind string
		var t OperationTotals
		if err := rows.Scan(&kind, &t.Count, &t.TotalBytes); err != nil {
			return nil, fmt.Errorf("aggregating file operations: %w", err)
		}
		totals[kind] = t
	}
	return totals, rows.Err()
}

// LoginCountsSince counts logins newer than since, keyed by login type.
func (s *Store) LoginCountsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT login_type, COUNT(*) FROM login_logs WHERE created_at >= ? GROUP BY login_type", sqliteTime(since))
	if err != nil {
		return nil, fmt.Errorf("aggregating logins: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("aggregating logins: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// CountUsers returns total and login-enabled account counts.
func (s *Store) CountUsers(ctx context.Context) (total, active int64, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("counting users: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE can_login = 1").Scan(&active); err != nil {
		return 0, 0, fmt.Errorf("counting active users: %w", err)
	}
	return total, active, nil
}
