package repofakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/khentdev/FitThreads-sub000/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory sessions.Repo for tests. WithTx serialises
// transactions behind a single mutex, which is enough to mirror the
// both-or-neither guarantee the rotation flow relies on: when the injected
// error hooks fire, any rows written earlier in the same transaction are
// rolled back.
type FakeSessionRepo struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	nextID   int64
	sessions map[int64]sessions.Session
	queue    map[int64]sessions.CleanupQueueEntry

	// Error hooks for failure-path tests. When set, the matching method
	// returns the error instead of mutating state.
	CreateSessionErr  error
	EnqueueCleanupErr error
	DeleteSessionsErr error
	DeleteEntryErr    error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		nextID:   1,
		sessions: make(map[int64]sessions.Session),
		queue:    make(map[int64]sessions.CleanupQueueEntry),
	}
}

func (f *FakeSessionRepo) CreateSession(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateSessionErr != nil {
		return f.CreateSessionErr
	}

	id := f.nextID
	f.nextID++
	f.sessions[id] = sessions.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (f *FakeSessionRepo) EnqueueCleanup(ctx context.Context, userID, tokenHash string, cleanupAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EnqueueCleanupErr != nil {
		return f.EnqueueCleanupErr
	}

	id := f.nextID
	f.nextID++
	f.queue[id] = sessions.CleanupQueueEntry{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
		CleanupAt: cleanupAt,
	}
	return nil
}

func (f *FakeSessionRepo) DeleteSessionsByUserAndToken(ctx context.Context, userID, tokenHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteSessionsErr != nil {
		return 0, f.DeleteSessionsErr
	}

	var deleted int64
	for id, s := range f.sessions {
		if s.UserID == userID && s.TokenHash == tokenHash {
			delete(f.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *FakeSessionRepo) DeleteSessionByID(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *FakeSessionRepo) ListDueCleanupEntries(ctx context.Context, now time.Time, limit int) ([]sessions.CleanupQueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []sessions.CleanupQueueEntry
	for _, e := range f.queue {
		if !e.CleanupAt.After(now) {
			due = append(due, e)
		}
	}
	sortByCleanupAt(due)
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *FakeSessionRepo) ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]sessions.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired []sessions.Session
	for _, s := range f.sessions {
		if !s.ExpiresAt.After(now) {
			expired = append(expired, s)
		}
	}
	sortByExpiresAt(expired)
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (f *FakeSessionRepo) DeleteCleanupEntry(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteEntryErr != nil {
		return f.DeleteEntryErr
	}

	delete(f.queue, id)
	return nil
}

func (f *FakeSessionRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo sessions.Repo) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	savedSessions := cloneMap(f.sessions)
	savedQueue := cloneMap(f.queue)
	savedNextID := f.nextID
	f.mu.Unlock()

	if err := fn(ctx, f); err != nil {
		f.mu.Lock()
		f.sessions = savedSessions
		f.queue = savedQueue
		f.nextID = savedNextID
		f.mu.Unlock()
		return err
	}
	return nil
}

// Sessions returns a snapshot of all session rows, for assertions.
func (f *FakeSessionRepo) Sessions() []sessions.Session {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]sessions.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		all = append(all, s)
	}
	sortByExpiresAt(all)
	return all
}

// CleanupEntries returns a snapshot of all queue entries, for assertions.
func (f *FakeSessionRepo) CleanupEntries() []sessions.CleanupQueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]sessions.CleanupQueueEntry, 0, len(f.queue))
	for _, e := range f.queue {
		all = append(all, e)
	}
	sortByCleanupAt(all)
	return all
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortByCleanupAt(entries []sessions.CleanupQueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CleanupAt.Before(entries[j].CleanupAt)
	})
}

func sortByExpiresAt(all []sessions.Session) {
	sort.Slice(all, func(i, j int) bool {
		return all[i].ExpiresAt.Before(all[j].ExpiresAt)
	})
}
