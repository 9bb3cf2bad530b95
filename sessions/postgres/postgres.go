// Package postgres provides the PostgreSQL-backed implementation of
// sessions.Repo over database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khentdev/FitThreads-sub000/internal/dbx"
	"github.com/khentdev/FitThreads-sub000/sessions"
)

var _ sessions.Repo = (*Repo)(nil)

// Repo implements sessions.Repo. A Repo created by New runs each call on the
// pool; inside WithTx the same queries run on the transaction handle.
type Repo struct {
	db *sql.DB  // nil on transaction-scoped copies
	q  dbx.DBTX // *sql.DB or *sql.Tx
}

// New constructs a repository bound to the given database.
func New(db *sql.DB) *Repo {
	return &Repo{db: db, q: db}
}

func (r *Repo) CreateSession(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.q.ExecContext(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repo) EnqueueCleanup(ctx context.Context, userID, tokenHash string, cleanupAt time.Time) error {
	query := `
		INSERT INTO session_cleanup_queue (user_id, token_hash, cleanup_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.q.ExecContext(ctx, query, userID, tokenHash, cleanupAt); err != nil {
		return fmt.Errorf("insert cleanup entry: %w", err)
	}
	return nil
}

func (r *Repo) DeleteSessionsByUserAndToken(ctx context.Context, userID, tokenHash string) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE user_id = $1 AND token_hash = $2
	`
	result, err := r.q.ExecContext(ctx, query, userID, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return deleted, nil
}

func (r *Repo) DeleteSessionByID(ctx context.Context, id int64) error {
	query := `
		DELETE FROM sessions
		WHERE id = $1
	`
	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repo) ListDueCleanupEntries(ctx context.Context, now time.Time, limit int) ([]sessions.CleanupQueueEntry, error) {
	query := `
		SELECT id, user_id, token_hash, created_at, cleanup_at
		FROM session_cleanup_queue
		WHERE cleanup_at <= $1
		ORDER BY cleanup_at ASC
		LIMIT $2
	`
	rows, err := r.q.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list cleanup entries: %w", err)
	}
	defer rows.Close()

	var entries []sessions.CleanupQueueEntry
	for rows.Next() {
		var e sessions.CleanupQueueEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TokenHash, &e.CreatedAt, &e.CleanupAt); err != nil {
			return nil, fmt.Errorf("scan cleanup entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cleanup entries: %w", err)
	}
	return entries, nil
}

func (r *Repo) ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]sessions.Session, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions
		WHERE expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`
	rows, err := r.q.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var expired []sessions.Session
	for rows.Next() {
		var s sessions.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		expired = append(expired, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return expired, nil
}

func (r *Repo) DeleteCleanupEntry(ctx context.Context, id int64) error {
	query := `
		DELETE FROM session_cleanup_queue
		WHERE id = $1
	`
	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete cleanup entry: %w", err)
	}
	return nil
}

// WithTx runs fn with a transaction-scoped Repo. Calling WithTx on an already
// transaction-scoped Repo reuses the open transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context, repo sessions.Repo) error) error {
	if r.db == nil {
		return fn(ctx, r)
	}
	return dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Repo{q: tx})
	})
}
