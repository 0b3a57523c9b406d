package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aivisio/platform/pkg/common/config"
	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// NewRedis dials Redis and verifies the connection. The client is
// injected into consumers rather than shared through a package global.
func NewRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Log.Info("Connected to Redis")
	return client, nil
}
