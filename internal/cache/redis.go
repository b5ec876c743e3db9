// Package cache keeps the live, collaboratively edited state of workspaces in
// Redis and writes it back to Postgres on flush.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const maxTxAttempts = 8

// NewClient parses redisURL and checks the server is reachable.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// watch runs fn under WATCH on keys and retries when a watched key changed
// before EXEC.
func watch(ctx context.Context, client *redis.Client, op string, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		metrics.CacheConflicts.WithLabelValues(op).Inc()
	}
	return apperr.Conflict(op + " kept racing with concurrent edits; retry")
}
