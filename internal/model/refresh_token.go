package model

import "time"

// SessionState is the lifecycle position of a refresh-token record.
// States only move forward: Active becomes Rotated, Revoked or Expired,
// and every one of those ends as Purged once the sweep deletes the row.
type SessionState string

const (
	SessionActive  SessionState = "ACTIVE"
	SessionRevoked SessionState = "REVOKED" // rotated or explicitly revoked
	SessionExpired SessionState = "EXPIRED"
)

// RefreshToken models a row of the `refresh_tokens` table. The bearer
// secret itself is never stored; only its keyed digest.
//
// Fields:
//
//	ID            – uuid primary key.
//	PrincipalID   – owning user or customer id.
//	PrincipalKind – which table PrincipalID points at.
//	TokenHash     – HMAC-SHA256 hex digest of the secret (unique).
//	ExpiresAt     – absolute expiry.
//	Revoked       – set on rotation, logout or explicit revoke.
//	DeviceInfo    – optional client descriptor (user agent or app header).
type RefreshToken struct {
	ID            string        `db:"id"`
	PrincipalID   string        `db:"principal_id"`
	PrincipalKind PrincipalKind `db:"principal_kind"`
	TokenHash     string        `db:"token_hash"`
	ExpiresAt     time.Time     `db:"expires_at"`
	Revoked       bool          `db:"revoked"`
	DeviceInfo    *string       `db:"device_info"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

// Expired reports whether the record is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Valid is true iff the record is not revoked and not expired.
func (t RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// State derives the lifecycle state at now. Revocation wins over expiry.
func (t RefreshToken) State(now time.Time) SessionState {
	switch {
	case t.Revoked:
		return SessionRevoked
	case t.Expired(now):
		return SessionExpired
	}
	return SessionActive
}
