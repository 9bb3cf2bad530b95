package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/khentdev/FitThreads-sub000/sessions"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestCreateSession(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	expiresAt := time.Now().Add(30 * 24 * time.Hour)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("u1", "hash1", expiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateSession(context.Background(), "u1", "hash1", expiresAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WillReturnError(errors.New("db down"))

	err := repo.CreateSession(context.Background(), "u1", "hash1", time.Now())
	require.ErrorContains(t, err, "insert session")
}

func TestEnqueueCleanup(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cleanupAt := time.Now().Add(time.Minute)

	mock.ExpectExec(`INSERT INTO session_cleanup_queue`).
		WithArgs("u1", "old-hash", cleanupAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.EnqueueCleanup(context.Background(), "u1", "old-hash", cleanupAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionsByUserAndToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("u1", "hash1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteSessionsByUserAndToken(context.Background(), "u1", "hash1")
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestDeleteSessionsByUserAndToken_AlreadyGone(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("u1", "hash1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteSessionsByUserAndToken(context.Background(), "u1", "hash1")
	require.NoError(t, err, "deleting an absent row is a no-op success")
	require.Zero(t, deleted)
}

func TestListDueCleanupEntries(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	created := now.Add(-2 * time.Minute)
	due := now.Add(-time.Minute)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "cleanup_at"}).
		AddRow(int64(7), "u1", "old-hash", created, due)

	mock.ExpectQuery(`SELECT id, user_id, token_hash, created_at, cleanup_at\s+FROM session_cleanup_queue`).
		WithArgs(now, 100).
		WillReturnRows(rows)

	entries, err := repo.ListDueCleanupEntries(context.Background(), now, 100)
	require.NoError(t, err)
	require.Equal(t, []sessions.CleanupQueueEntry{{
		ID:        7,
		UserID:    "u1",
		TokenHash: "old-hash",
		CreatedAt: created,
		CleanupAt: due,
	}}, entries)
}

func TestListExpiredSessions(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	expired := now.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}).
		AddRow(int64(3), "u2", "hash2", expired, expired.Add(-30*24*time.Hour))

	mock.ExpectQuery(`SELECT id, user_id, token_hash, expires_at, created_at\s+FROM sessions`).
		WithArgs(now, 50).
		WillReturnRows(rows)

	result, err := repo.ListExpiredSessions(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, int64(3), result[0].ID)
	require.Equal(t, "u2", result[0].UserID)
}

func TestDeleteCleanupEntry(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM session_cleanup_queue`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteCleanupEntry(context.Background(), 7))
}

func TestWithTx_PairCommitsTogether(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	cleanupAt := time.Now().Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("u1", "new-hash", expiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO session_cleanup_queue`).
		WithArgs("u1", "old-hash", cleanupAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx sessions.Repo) error {
		if err := tx.CreateSession(ctx, "u1", "new-hash", expiresAt); err != nil {
			return err
		}
		return tx.EnqueueCleanup(ctx, "u1", "old-hash", cleanupAt)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnSecondInsertFailure(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	cleanupAt := time.Now().Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sessions`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO session_cleanup_queue`).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx sessions.Repo) error {
		if err := tx.CreateSession(ctx, "u1", "new-hash", expiresAt); err != nil {
			return err
		}
		return tx.EnqueueCleanup(ctx, "u1", "old-hash", cleanupAt)
	})
	require.ErrorContains(t, err, "insert cleanup entry")
	require.NoError(t, mock.ExpectationsWereMet())
}
