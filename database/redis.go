package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hyodream/api/config"
	"hyodream/api/logging"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logging.Info().Str("addr", cfg.Addr).Msg("connected to Redis")
	return &RedisClient{Client: client}, nil
}

func (c *RedisClient) Close() {
	if c.Client != nil {
		if err := c.Client.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing Redis connection")
		}
	}
}
