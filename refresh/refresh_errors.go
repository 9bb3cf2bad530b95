package refresh

import "errors"

var (
	// ErrRotationInProgress means another caller holds the rotation lock and
	// its result never appeared within the retry budget. Retryable: the
	// caller's session is intact and a later attempt will succeed.
	ErrRotationInProgress = errors.New("rotation in progress")

	// ErrRefreshFailed is the generic error for an unrecoverable store
	// failure while minting a new token generation. Details are logged, not
	// surfaced.
	ErrRefreshFailed = errors.New("session refresh failed")
)
