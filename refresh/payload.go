package refresh

import "github.com/khentdev/FitThreads-sub000/users"

// CachePayload is the rotation result shared across racing callers through
// the cache. It is written once per rotation under two keys: the old token's
// key with a short TTL, and the new token's key with a long one. Access and
// CSRF tokens are deliberately absent: each caller mints its own.
type CachePayload struct {
	User         users.User `json:"user"`
	RefreshToken string     `json:"refresh_token"`
}

// Cache and lock keys are derived from token fingerprints, never raw tokens.

func rotationCacheKey(tokenHash string) string {
	return "rotation:" + tokenHash
}

func rotationLockKey(tokenHash string) string {
	return "rotation:lock:" + tokenHash
}
