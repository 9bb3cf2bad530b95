package config

import "time"

// AuthConfig carries the timing and size knobs for token issuance, the
// rotation cache, the rotation lock, and the cleanup worker.
type AuthConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int

	GetOldTokenCacheTTL() time.Duration
	GetNewTokenCacheTTL() time.Duration

	GetLockExpiry() time.Duration
	GetLockMaxAttempts() int
	GetLockRetryBaseDelay() time.Duration
	GetLockRetryMaxDelay() time.Duration

	GetCleanupInterval() time.Duration
	GetCleanupDelay() time.Duration
	GetCleanupBatchSize() int
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetAccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}

func (Auth) GetRefreshTokenExpiry() time.Duration {
	return 30 * 24 * time.Hour // 30 days
}

func (Auth) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

// GetOldTokenCacheTTL bounds how long latecomers holding the superseded
// refresh token can still pick up the rotation result.
func (Auth) GetOldTokenCacheTTL() time.Duration {
	return 30 * time.Second
}

// GetNewTokenCacheTTL lets holders of the current refresh token shortcut
// their next rotation without touching the lock or the database.
func (Auth) GetNewTokenCacheTTL() time.Duration {
	return 20 * time.Minute
}

func (Auth) GetLockExpiry() time.Duration {
	return 15 * time.Second
}

func (Auth) GetLockMaxAttempts() int {
	return 5
}

func (Auth) GetLockRetryBaseDelay() time.Duration {
	return 50 * time.Millisecond
}

func (Auth) GetLockRetryMaxDelay() time.Duration {
	return 800 * time.Millisecond
}

func (Auth) GetCleanupInterval() time.Duration {
	return 5 * time.Minute
}

// GetCleanupDelay is how long a superseded token stays in the queue before it
// becomes eligible for deletion. It must outlive the old-token cache TTL so
// in-flight requests carrying the old token are not cut off mid-rotation.
func (Auth) GetCleanupDelay() time.Duration {
	return time.Minute
}

func (Auth) GetCleanupBatchSize() int {
	return 100
}
