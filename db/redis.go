// file: db/redis.go

package db

import (
	"context"
	"fmt"
	"go-token-auth/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ConnectRedis initializes and returns a new Redis client.
func ConnectRedis(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*redis.Client, error) {
	redisAddr := fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.WithError(err).Error("Failed to ping Redis")
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.WithField("address", redisAddr).Info("Redis connection established successfully")
	return rdb, nil
}
