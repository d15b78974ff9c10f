// file: model/token.go

package model

import "time"

// TokenTypeBearer is the only token type label handed to clients.
const TokenTypeBearer = "Bearer"

// TokenPair is the result of a successful login or refresh. Only the refresh half is persisted.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// RecordStatus is the lifecycle state of a refresh token record.
type RecordStatus string

const (
	RecordActive  RecordStatus = "active"
	RecordUsed    RecordStatus = "used"
	RecordRevoked RecordStatus = "revoked"
	RecordExpired RecordStatus = "expired"
)

// RefreshTokenRecord holds the data for an issued refresh token in the database.
// UsedAt and RevokedAt are mutually exclusive.
type RefreshTokenRecord struct {
	JTI             string            `json:"jti"`
	UserID          string            `json:"user_id"`
	TokenHash       string            `json:"-"` // The hash is not exposed in JSON responses.
	FamilyID        string            `json:"family_id"`
	AccessJTI       string            `json:"-"`
	AccessExpiresAt time.Time         `json:"-"`
	Device          DeviceFingerprint `json:"device"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	UsedAt          *time.Time        `json:"used_at,omitempty"`
	RevokedAt       *time.Time        `json:"revoked_at,omitempty"`
	RevokeReason    string            `json:"revoke_reason,omitempty"`
}

// Status derives the record state at now. Expiry is never stored.
func (r *RefreshTokenRecord) Status(now time.Time) RecordStatus {
	switch {
	case r.RevokedAt != nil:
		return RecordRevoked
	case r.UsedAt != nil:
		return RecordUsed
	case !now.Before(r.ExpiresAt):
		return RecordExpired
	default:
		return RecordActive
	}
}

// IsActive reports whether the record can still be exchanged for a new pair.
func (r *RefreshTokenRecord) IsActive(now time.Time) bool {
	return r.Status(now) == RecordActive
}
