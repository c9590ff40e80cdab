package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"doubtdesk/internal/config"
)

// NewClient creates a Redis client and verifies the connection with a ping.
// The returned client is passed into the components that need it and closed
// by the caller at shutdown.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}
