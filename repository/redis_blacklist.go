package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-token-auth/model"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const blacklistKeyPrefix = "blacklist:"

// RedisCommander is the subset of the go-redis client used by RedisBlacklist.
type RedisCommander interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisBlacklist stores one key per jti that expires together with the token,
// so Redis purges entries on its own.
type RedisBlacklist struct {
	rdb RedisCommander
	log logrus.FieldLogger
	now func() time.Time
}

func NewRedisBlacklist(rdb RedisCommander, log logrus.FieldLogger) *RedisBlacklist {
	return &RedisBlacklist{rdb: rdb, log: log, now: time.Now}
}

func blacklistKey(jti string) string {
	return blacklistKeyPrefix + jti
}

// Add stores the entry until entry.ExpiresAt. Entries already past it are dropped
// since the token can no longer be presented.
func (b *RedisBlacklist) Add(ctx context.Context, entry *model.BlacklistEntry) error {
	ttl := entry.ExpiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if entry.BlacklistedAt.IsZero() {
		entry.BlacklistedAt = b.now().UTC()
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode blacklist entry: %w", err)
	}

	if err := b.rdb.SetNX(ctx, blacklistKey(entry.JTI), value, ttl).Err(); err != nil {
		b.log.WithError(err).WithField("jti", entry.JTI).Error("Failed to write blacklist entry to Redis")
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		b.log.WithError(err).WithField("jti", jti).Error("Failed to read blacklist entry from Redis")
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// Purge is a no-op: keys expire with their tokens.
func (b *RedisBlacklist) Purge(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
