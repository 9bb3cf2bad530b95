package sessions

import (
	"context"
	"time"
)

// Repo defines the interface for session and cleanup-queue storage.
//
// Deletes are idempotent: removing a row that is already gone is a success,
// which is what makes the cleanup worker safe to retry.
type Repo interface {
	// CreateSession inserts a new session row for a freshly minted refresh
	// token generation.
	CreateSession(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// EnqueueCleanup records that the session holding tokenHash has been
	// superseded and should be deleted once cleanupAt has passed.
	EnqueueCleanup(ctx context.Context, userID, tokenHash string, cleanupAt time.Time) error

	// DeleteSessionsByUserAndToken removes the session row(s) matching the
	// pair and reports how many were deleted.
	DeleteSessionsByUserAndToken(ctx context.Context, userID, tokenHash string) (int64, error)

	// DeleteSessionByID removes one session row.
	DeleteSessionByID(ctx context.Context, id int64) error

	// ListDueCleanupEntries returns up to limit queue entries whose cleanupAt
	// has passed, oldest first.
	ListDueCleanupEntries(ctx context.Context, now time.Time, limit int) ([]CleanupQueueEntry, error)

	// ListExpiredSessions returns up to limit sessions whose expiresAt has
	// passed, soonest first.
	ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]Session, error)

	// DeleteCleanupEntry removes one queue entry.
	DeleteCleanupEntry(ctx context.Context, id int64) error

	// WithTx runs fn against a transaction-scoped Repo and commits on
	// success. The rotation flow uses it to make the CreateSession +
	// EnqueueCleanup pair both-or-neither.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repo) error) error
}
