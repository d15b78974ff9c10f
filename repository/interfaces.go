// file: repository/interfaces.go

package repository

import (
	"context"
	"errors"
	"time"

	"go-token-auth/model"
)

var (
	ErrRecordNotFound    = errors.New("refresh token record not found")
	ErrRecordRevoked     = errors.New("refresh token record revoked")
	ErrRecordUsed        = errors.New("refresh token record already used")
	ErrRecordExpired     = errors.New("refresh token record expired")
	ErrTokenHashMismatch = errors.New("refresh token hash mismatch")
	ErrDuplicateRecord   = errors.New("refresh token record already exists")
)

// RefreshTokenStore is the durable lifecycle record of every issued refresh token.
type RefreshTokenStore interface {
	Create(ctx context.Context, record *model.RefreshTokenRecord) error
	// FindByJTI returns ErrRecordNotFound when no record exists.
	FindByJTI(ctx context.Context, jti string) (*model.RefreshTokenRecord, error)
	Delete(ctx context.Context, jti string) error
	// FindByUserID returns records ordered oldest first. Without includeRevoked only
	// records that are neither used nor revoked are returned; expired ones are included.
	FindByUserID(ctx context.Context, userID string, includeRevoked bool) ([]*model.RefreshTokenRecord, error)
	Revoke(ctx context.Context, jti, reason string) error
	RevokeAllByUserID(ctx context.Context, userID, reason, excludeJTI string) (int, error)
	RevokeAllByDevice(ctx context.Context, userID, deviceID, reason string) (int, error)
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)
	// Consume atomically checks that the record is active and matches tokenHash, then marks it used.
	// On ErrRecordUsed and ErrRecordRevoked the stored record is returned alongside the error.
	Consume(ctx context.Context, jti, tokenHash string, now time.Time) (*model.RefreshTokenRecord, error)
	DeleteExpiredByUserID(ctx context.Context, userID string, now time.Time) (int, error)
	// Cleanup deletes records that expired at or before before.
	Cleanup(ctx context.Context, before time.Time) (int, error)
	// CleanupRevoked deletes used and revoked records whose terminal transition happened at or before before.
	CleanupRevoked(ctx context.Context, before time.Time) (int, error)
}

// TokenBlacklist is the denylist of token ids revoked before their natural expiry.
type TokenBlacklist interface {
	// Add is idempotent: re-adding a jti keeps the first entry.
	Add(ctx context.Context, entry *model.BlacklistEntry) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	// Purge drops entries whose token would have expired by now.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// IUserRepository defines the contract for user lookups used by the credential check.
type IUserRepository interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	GetUserByID(ctx context.Context, id int) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
}
