package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
)

const (
	clientName   = "lemur"
	pingAttempts = 3
)

// NewRedisClient connects to the Redis instance holding member sessions and
// the job stream. The ping is retried so the api and the worker tolerate a
// Redis that is still starting.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	})

	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return client, nil
		}
		if attempt < pingAttempts {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("redis ping after %d attempts: %w", pingAttempts, err)
}
