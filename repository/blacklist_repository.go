package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go-token-auth/model"

	"github.com/sirupsen/logrus"
)

// BlacklistRepository implements TokenBlacklist on PostgreSQL.
type BlacklistRepository struct {
	DB  *sql.DB
	log logrus.FieldLogger
}

func NewBlacklistRepository(database *sql.DB, log logrus.FieldLogger) *BlacklistRepository {
	return &BlacklistRepository{DB: database, log: log}
}

// Add inserts an entry. A jti that is already blacklisted keeps its first entry.
func (r *BlacklistRepository) Add(ctx context.Context, entry *model.BlacklistEntry) error {
	blacklistedAt := entry.BlacklistedAt
	if blacklistedAt.IsZero() {
		blacklistedAt = time.Now().UTC()
	}

	query := `INSERT INTO token_blacklist (jti, token_type, user_id, reason, expires_at, blacklisted_at)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (jti) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query,
		entry.JTI, string(entry.TokenType), entry.UserID, entry.Reason, entry.ExpiresAt, blacklistedAt)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"jti":    entry.JTI,
			"reason": entry.Reason,
		}).Error("Failed to execute blacklist insert query")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`
	if err := r.DB.QueryRowContext(ctx, query, jti).Scan(&exists); err != nil {
		r.log.WithError(err).WithField("jti", jti).Error("Failed to execute blacklist lookup query")
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Purge deletes entries for tokens that would have expired by now anyway.
func (r *BlacklistRepository) Purge(ctx context.Context, now time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at <= $1`, now)
	if err != nil {
		r.log.WithError(err).Error("Failed to execute blacklist purge query")
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}
