// file: repository/token_repository.go

package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-token-auth/db"
	"go-token-auth/model"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const refreshTokenColumns = `jti, user_id, token_hash, family_id, access_jti, access_expires_at,
	device_id, device_name, ip_address, user_agent, platform, browser,
	created_at, expires_at, used_at, revoked_at, revoke_reason`

// RefreshTokenRepository implements RefreshTokenStore on PostgreSQL.
type RefreshTokenRepository struct {
	DB  *sql.DB
	log logrus.FieldLogger
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(database *sql.DB, log logrus.FieldLogger) *RefreshTokenRepository {
	return &RefreshTokenRepository{DB: database, log: log}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.RefreshTokenRecord, error) {
	var (
		rec             model.RefreshTokenRecord
		accessExpiresAt sql.NullTime
		usedAt          sql.NullTime
		revokedAt       sql.NullTime
	)
	err := row.Scan(
		&rec.JTI, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &rec.AccessJTI, &accessExpiresAt,
		&rec.Device.DeviceID, &rec.Device.DeviceName, &rec.Device.IPAddress, &rec.Device.UserAgent,
		&rec.Device.Platform, &rec.Device.Browser,
		&rec.CreatedAt, &rec.ExpiresAt, &usedAt, &revokedAt, &rec.RevokeReason,
	)
	if err != nil {
		return nil, err
	}
	if accessExpiresAt.Valid {
		rec.AccessExpiresAt = accessExpiresAt.Time
	}
	if usedAt.Valid {
		t := usedAt.Time
		rec.UsedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Create inserts a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, rec *model.RefreshTokenRecord) error {
	log := r.log.WithFields(logrus.Fields{
		"user_id":    rec.UserID,
		"family_id":  rec.FamilyID,
		"device_id":  rec.Device.DeviceID,
		"expires_at": rec.ExpiresAt,
	})
	log.Debug("Executing query to create a new refresh token")

	query := `INSERT INTO refresh_tokens (jti, user_id, token_hash, family_id, access_jti, access_expires_at,
		device_id, device_name, ip_address, user_agent, platform, browser, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.DB.ExecContext(ctx, query,
		rec.JTI, rec.UserID, rec.TokenHash, rec.FamilyID, rec.AccessJTI, nullTime(rec.AccessExpiresAt),
		rec.Device.DeviceID, rec.Device.DeviceName, rec.Device.IPAddress, rec.Device.UserAgent,
		rec.Device.Platform, rec.Device.Browser, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateRecord
		}
		log.WithError(err).Error("Failed to execute create refresh token query")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByJTI retrieves a refresh token record by its token id.
func (r *RefreshTokenRepository) FindByJTI(ctx context.Context, jti string) (*model.RefreshTokenRecord, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE jti = $1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, jti))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		r.log.WithError(err).WithField("jti", jti).Error("Failed to execute get refresh token by jti query")
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, jti string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE jti = $1`, jti); err != nil {
		r.log.WithError(err).WithField("jti", jti).Error("Failed to execute delete refresh token query")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByUserID lists a user's records, oldest first.
func (r *RefreshTokenRepository) FindByUserID(ctx context.Context, userID string, includeRevoked bool) ([]*model.RefreshTokenRecord, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE user_id = $1`
	if !includeRevoked {
		query += ` AND revoked_at IS NULL AND used_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("Failed to execute query for refresh tokens by user")
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var records []*model.RefreshTokenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			r.log.WithError(err).Error("Failed to scan refresh token row")
			return nil, fmt.Errorf("db error: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return records, nil
}

// Revoke marks a single record revoked. Used or already revoked records are left untouched.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, jti, reason string) error {
	query := `UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		WHERE jti = $1 AND revoked_at IS NULL AND used_at IS NULL`
	if _, err := r.DB.ExecContext(ctx, query, jti, time.Now().UTC(), reason); err != nil {
		r.log.WithError(err).WithField("jti", jti).Error("Failed to execute revoke refresh token query")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) execCount(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).WithField("op", op).Error("Failed to execute refresh token bulk query")
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

// RevokeAllByUserID revokes every active record of a user except excludeJTI.
func (r *RefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID, reason, excludeJTI string) (int, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		WHERE user_id = $1 AND jti <> $4 AND revoked_at IS NULL AND used_at IS NULL`
	return r.execCount(ctx, "revoke_all_by_user", query, userID, time.Now().UTC(), reason, excludeJTI)
}

// RevokeAllByDevice revokes every active record a user holds on one device.
func (r *RefreshTokenRepository) RevokeAllByDevice(ctx context.Context, userID, deviceID, reason string) (int, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $3, revoke_reason = $4
		WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL AND used_at IS NULL`
	return r.execCount(ctx, "revoke_all_by_device", query, userID, deviceID, time.Now().UTC(), reason)
}

// RevokeFamily revokes every active record descending from the same login.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		WHERE family_id = $1 AND revoked_at IS NULL AND used_at IS NULL`
	return r.execCount(ctx, "revoke_family", query, familyID, time.Now().UTC(), reason)
}

// Consume locks the record, checks it and marks it used in one transaction.
func (r *RefreshTokenRepository) Consume(ctx context.Context, jti, tokenHash string, now time.Time) (*model.RefreshTokenRecord, error) {
	var consumed *model.RefreshTokenRecord

	err := db.WithTx(ctx, r.DB, nil, func(tx *sql.Tx) error {
		query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE jti = $1 FOR UPDATE`
		rec, err := scanRecord(tx.QueryRowContext(ctx, query, jti))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}

		if err := checkConsumable(rec, tokenHash, now); err != nil {
			consumed = rec
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET used_at = $2 WHERE jti = $1`, jti, now); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		rec.UsedAt = &now
		consumed = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRecordUsed) || errors.Is(err, ErrRecordRevoked) {
			return consumed, err
		}
		if !isRecordOutcome(err) {
			r.log.WithError(err).WithField("jti", jti).Error("Failed to consume refresh token")
		}
		return nil, err
	}
	return consumed, nil
}

// DeleteExpiredByUserID purges a user's expired records.
func (r *RefreshTokenRepository) DeleteExpiredByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	return r.execCount(ctx, "delete_expired_by_user",
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= $2`, userID, now)
}

// Cleanup deletes records that expired at or before before.
func (r *RefreshTokenRepository) Cleanup(ctx context.Context, before time.Time) (int, error) {
	return r.execCount(ctx, "cleanup_expired",
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
}

// CleanupRevoked deletes used and revoked records older than before.
func (r *RefreshTokenRepository) CleanupRevoked(ctx context.Context, before time.Time) (int, error) {
	return r.execCount(ctx, "cleanup_revoked",
		`DELETE FROM refresh_tokens WHERE revoked_at <= $1 OR used_at <= $1`, before)
}

// checkConsumable is shared by every store implementation so they agree on precedence.
func checkConsumable(rec *model.RefreshTokenRecord, tokenHash string, now time.Time) error {
	switch rec.Status(now) {
	case model.RecordRevoked:
		return ErrRecordRevoked
	case model.RecordUsed:
		return ErrRecordUsed
	case model.RecordExpired:
		return ErrRecordExpired
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(tokenHash)) != 1 {
		return ErrTokenHashMismatch
	}
	return nil
}

func isRecordOutcome(err error) bool {
	return errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrRecordExpired) || errors.Is(err, ErrTokenHashMismatch)
}
