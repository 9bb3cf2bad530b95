package users

import "time"

// User is the profile snapshot carried through the refresh flow. It is what
// the refresh handler serialises back to the client alongside the new tokens,
// and what gets cached with a rotation result so every concurrent caller sees
// the same profile. The full profile (bio, follower counts, settings) lives in
// the relational model and is not needed here.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Verified    bool      `json:"verified,omitempty"`
	DateJoined  time.Time `json:"date_joined,omitempty"`
}
