// Package sessions holds the persistent side of refresh-token rotation: one
// row per live refresh-token generation, and a queue of superseded tokens
// waiting to be retired by the cleanup worker.
package sessions

import "time"

// Session is one currently valid refresh-token generation. The raw refresh
// token never touches the database; only its SHA-256 fingerprint is stored.
// (UserID, TokenHash) is unique.
type Session struct {
	ID        int64     // Database identity
	UserID    string    // Owner of the session
	TokenHash string    // Fingerprint of the refresh token
	ExpiresAt time.Time // Absolute expiry of the refresh token
	CreatedAt time.Time // When this generation was minted
}

// CleanupQueueEntry is a pending instruction to retire one stale session.
// It is inserted in the same transaction as the Session row that superseded
// it, so the store never holds a queue entry without its replacement session
// or the other way round.
type CleanupQueueEntry struct {
	ID        int64     // Database identity
	UserID    string    // Owner of the superseded session
	TokenHash string    // Fingerprint of the *old* token to delete
	CreatedAt time.Time // When the rotation happened
	CleanupAt time.Time // Earliest time the worker may process this entry
}
