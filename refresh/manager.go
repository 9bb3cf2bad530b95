// Package refresh implements race-safe refresh-token rotation. A client may
// fire several simultaneous refresh requests carrying the same about-to-be-
// rotated token (retry storms, multiple tabs, racing background timers); the
// rotation must mint exactly one surviving refresh token per generation while
// every concurrent caller still walks away with a usable access token.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/khentdev/FitThreads-sub000/cache"
	"github.com/khentdev/FitThreads-sub000/sessions"
	"github.com/khentdev/FitThreads-sub000/token"
	"github.com/khentdev/FitThreads-sub000/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Result is what a successful rotation hands back to the HTTP layer: the
// refresh and CSRF tokens become cookies, the access token goes in the
// response body alongside the user snapshot.
type Result struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	User         users.User
}

// Manager orchestrates token rotation. The persistent session/queue pair is
// the source of truth; the cache and the lock are coordination layers whose
// failure degrades concurrency handling, never correctness.
type Manager struct {
	repo   sessions.Repo
	cache  cache.Store
	locks  *cache.LockManager
	issuer token.Issuer

	oldTokenTTL  time.Duration
	newTokenTTL  time.Duration
	cleanupDelay time.Duration

	nowFunc func() time.Time
	logger  zerolog.Logger
}

type ManagerOption func(*Manager)

// WithCacheTTLs sets the dual-key TTLs: oldTokenTTL bounds how long
// latecomers on the superseded token can pick up the result, newTokenTTL how
// long holders of the new token can shortcut their next rotation.
func WithCacheTTLs(oldTokenTTL, newTokenTTL time.Duration) ManagerOption {
	return func(m *Manager) {
		m.oldTokenTTL = oldTokenTTL
		m.newTokenTTL = newTokenTTL
	}
}

// WithCleanupDelay sets how long after a rotation the superseded session
// becomes eligible for deletion by the cleanup worker.
func WithCleanupDelay(delay time.Duration) ManagerOption {
	return func(m *Manager) {
		m.cleanupDelay = delay
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithLogger replaces the global logger (primarily for testing)
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager initialises a rotation Manager with required dependencies.
func NewManager(
	repo sessions.Repo,
	store cache.Store,
	locks *cache.LockManager,
	issuer token.Issuer,
	options ...ManagerOption,
) (*Manager, error) {
	if repo == nil {
		return nil, pkgerrors.New("[NewManager] sessions repo is required")
	}
	if store == nil {
		return nil, pkgerrors.New("[NewManager] cache store is required")
	}
	if locks == nil {
		return nil, pkgerrors.New("[NewManager] lock manager is required")
	}
	if issuer == nil {
		return nil, pkgerrors.New("[NewManager] token issuer is required")
	}

	m := &Manager{
		repo:         repo,
		cache:        store,
		locks:        locks,
		issuer:       issuer,
		oldTokenTTL:  30 * time.Second,
		newTokenTTL:  20 * time.Minute,
		cleanupDelay: time.Minute,
		nowFunc:      time.Now,
		logger:       log.Logger,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Rotate exchanges oldToken for the current token generation. Concurrent
// calls with the same oldToken all succeed: exactly one of them mints the new
// generation (one session insert, one cleanup-queue entry) and the rest
// observe its result through the cache, each minting their own access and
// CSRF tokens.
//
// The steps, in order: cache fast path; lock acquire (which itself reports a
// cache hit if the winner finishes while we wait); double-check under lock;
// transactional mint; atomic dual-key cache write; lock release.
func (m *Manager) Rotate(ctx context.Context, user users.User, deviceID, oldToken string) (*Result, error) {
	oldHash := token.Hash(oldToken)
	cacheKey := rotationCacheKey(oldHash)

	// Fast path: a rotation for this token already happened.
	if result, ok := m.cachedResult(ctx, cacheKey, deviceID); ok {
		return result, nil
	}

	lock, payload, err := m.locks.Acquire(ctx, rotationLockKey(oldHash), cacheKey)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !errors.Is(err, cache.ErrLockNotAcquired) {
			// Without the lock we cannot safely mint; let the client retry.
			m.logger.Err(err).Str("user_id", user.ID).Msg("rotation lock acquire failed")
		}
		return nil, ErrRotationInProgress
	}
	if lock == nil {
		// Another process finished rotating while we waited for the lock.
		if result, ok := m.decodePayload(ctx, cacheKey, payload, deviceID); ok {
			return result, nil
		}
		return nil, ErrRotationInProgress
	}
	// Release must run on success and failure alike; a request context that
	// died after minting must not leak the lock for its full TTL.
	defer m.locks.Release(context.WithoutCancel(ctx), lock)

	// Double-check under the lock: a lock-free fast path elsewhere may have
	// completed the rotation between our first look and the acquire.
	if result, ok := m.cachedResult(ctx, cacheKey, deviceID); ok {
		return result, nil
	}

	return m.mint(ctx, user, deviceID, oldHash, cacheKey)
}

// mint creates the new token generation. Caller holds the rotation lock.
func (m *Manager) mint(ctx context.Context, user users.User, deviceID, oldHash, cacheKey string) (*Result, error) {
	newToken, expiresAt, err := m.issuer.IssueRefreshToken(user.ID, deviceID)
	if err != nil {
		m.logger.Err(err).Str("user_id", user.ID).Msg("refresh token issuance failed")
		return nil, ErrRefreshFailed
	}
	newHash := token.Hash(newToken)
	cleanupAt := m.nowFunc().Add(m.cleanupDelay)

	// The new session row and the cleanup instruction for the old one commit
	// together or not at all.
	err = m.repo.WithTx(ctx, func(ctx context.Context, tx sessions.Repo) error {
		if err := tx.CreateSession(ctx, user.ID, newHash, expiresAt); err != nil {
			return err
		}
		return tx.EnqueueCleanup(ctx, user.ID, oldHash, cleanupAt)
	})
	if err != nil {
		m.logger.Err(err).Str("user_id", user.ID).Msg("session refresh transaction failed")
		return nil, ErrRefreshFailed
	}

	// Cache population comes strictly after the commit so no reader can
	// observe a cached token whose session row does not exist yet. A write
	// failure is absorbed: the row is durable, latecomers just take the
	// slower path.
	payload, err := json.Marshal(CachePayload{User: user, RefreshToken: newToken})
	if err == nil {
		err = m.cache.SetDual(ctx, cacheKey, rotationCacheKey(newHash), string(payload), m.oldTokenTTL, m.newTokenTTL)
	}
	if err != nil {
		m.logger.Err(err).Str("user_id", user.ID).Msg("failed to cache rotation result")
	}

	return m.buildResult(user, deviceID, newToken)
}

// cachedResult looks up the rotation result for cacheKey and, on a hit,
// builds a caller-specific Result around it. A corrupt payload or a cache
// error counts as a miss.
func (m *Manager) cachedResult(ctx context.Context, cacheKey, deviceID string) (*Result, bool) {
	payload, err := m.cache.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			m.logger.Err(err).Msg("rotation cache read failed")
		}
		return nil, false
	}
	return m.decodePayload(ctx, cacheKey, payload, deviceID)
}

// decodePayload turns a cached payload into a caller-specific Result. A
// malformed payload is evicted (compare-and-delete against the exact bytes we
// read, so a concurrent rewrite survives) and reported as a miss, letting the
// caller fall through to the mint path.
func (m *Manager) decodePayload(ctx context.Context, cacheKey, payload, deviceID string) (*Result, bool) {
	var cached CachePayload
	if err := json.Unmarshal([]byte(payload), &cached); err != nil || cached.RefreshToken == "" {
		m.logger.Warn().Msg("discarding malformed rotation cache payload")
		if _, err := m.cache.DeleteIfEquals(ctx, cacheKey, payload); err != nil {
			m.logger.Err(err).Msg("failed to evict malformed rotation cache payload")
		}
		return nil, false
	}

	result, err := m.buildResult(cached.User, deviceID, cached.RefreshToken)
	if err != nil {
		return nil, false
	}
	return result, true
}

// buildResult mints the per-caller access and CSRF tokens around a refresh
// token. These are cheap and carry no store-side identity, so they are never
// deduplicated across concurrent callers.
func (m *Manager) buildResult(user users.User, deviceID, refreshToken string) (*Result, error) {
	accessToken, err := m.issuer.IssueAccessToken(user.ID, deviceID)
	if err != nil {
		m.logger.Err(err).Str("user_id", user.ID).Msg("access token issuance failed")
		return nil, ErrRefreshFailed
	}
	csrfToken, err := m.issuer.IssueCSRFToken()
	if err != nil {
		m.logger.Err(err).Str("user_id", user.ID).Msg("csrf token issuance failed")
		return nil, ErrRefreshFailed
	}

	return &Result{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
		User:         user,
	}, nil
}
