// Package store holds the redis-backed shared state of the pipeline:
// the idempotency claims and the per-sender rate windows. Both degrade
// gracefully when redis is absent; neither ever does a client-side
// read-modify-write.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis URL and verifies the connection with a ping.
// An empty URL returns a nil client, which every consumer treats as
// "store absent" and degrades per its own contract.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
