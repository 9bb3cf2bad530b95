package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Issuer mints the three artifacts handed out by a refresh: a signed access
// token, an opaque refresh token with its expiry, and an opaque CSRF token.
type Issuer interface {
	IssueAccessToken(userID, deviceID string) (string, error)
	IssueRefreshToken(userID, deviceID string) (string, time.Time, error)
	IssueCSRFToken() (string, error)
}

// Manager issues JWT access tokens and random opaque refresh/CSRF tokens.
type Manager struct {
	signer             Signer
	issuer             string
	audience           string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	refreshTokenLength int
	nowFunc            func() time.Time
}

var _ Issuer = (*Manager)(nil)

type ManagerOption func(*Manager)

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithAudience(audience string) ManagerOption {
	return func(m *Manager) {
		m.audience = audience
	}
}

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithRefreshTokenLength(length int) ManagerOption {
	return func(m *Manager) {
		m.refreshTokenLength = length
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// New initialises a Manager with the given signer. Optional configuration can
// be provided via options.
func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, errors.New("[token.New] signer is required")
	}

	m := &Manager{
		signer:             signer,
		issuer:             "com.fitthreads",
		audience:           "fitthreads-api",
		accessTokenExpiry:  15 * time.Minute,
		refreshTokenExpiry: 30 * 24 * time.Hour,
		refreshTokenLength: 32,
		nowFunc:            time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// IssueAccessToken creates a short-lived signed JWT bound to a user and device.
// Every call produces a distinct token (fresh iat and jti), which is why
// concurrent refresh callers can each receive their own.
func (m *Manager) IssueAccessToken(userID, deviceID string) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss":    m.issuer,
		"aud":    m.audience,
		"sub":    userID,
		"device": deviceID,
		"iat":    now.Unix(),
		"exp":    now.Add(m.accessTokenExpiry).Unix(),
		"jti":    uuid.New().String(),
	}
	return m.signer.Sign(claims)
}

// IssueRefreshToken creates an opaque random refresh token and returns it with
// its absolute expiry. The raw token is only ever sent to the client; the
// server stores its fingerprint (see Hash).
func (m *Manager) IssueRefreshToken(userID, deviceID string) (string, time.Time, error) {
	_ = userID // opaque tokens carry no claims; identity lives in the session row
	_ = deviceID

	raw, err := randomHex(m.refreshTokenLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return raw, m.nowFunc().Add(m.refreshTokenExpiry), nil
}

// IssueCSRFToken creates an opaque random token for double-submit CSRF checks.
func (m *Manager) IssueCSRFToken() (string, error) {
	raw, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return raw, nil
}

// Hash returns the hex SHA-256 fingerprint of a raw token. It is what the
// session store, the cleanup queue, and every Redis key use in place of the
// raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
