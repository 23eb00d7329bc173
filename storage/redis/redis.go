// Package redis provides a Redis-backed webhook event deduper. A SET NX with
// a TTL records each event id atomically, so concurrent deliveries of the
// same event agree on which one runs.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis deduper configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gocashier:event:")
	KeyPrefix string

	// EventTTL bounds how long an event id is remembered. Stripe retries
	// webhooks for up to three days, so the default is slightly longer.
	EventTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "gocashier:event:",
		EventTTL:  96 * time.Hour,
	}
}

// Deduper implements cashier.EventDeduper using Redis.
type Deduper struct {
	client redis.UniversalClient
	config Config
}

// New creates a new Redis deduper.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Deduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "gocashier:event:"
	}
	if config.EventTTL <= 0 {
		config.EventTTL = 96 * time.Hour
	}

	return &Deduper{client: client, config: config}, nil
}

// Seen records the event id and reports whether it was already recorded.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}

	stored, err := d.client.SetNX(ctx, d.config.KeyPrefix+eventID, 1, d.config.EventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event id: %w", err)
	}
	return !stored, nil
}

// Forget drops the event id so a redelivery would be processed again. Useful
// when a handler failed after the id was recorded.
func (d *Deduper) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := d.client.Del(ctx, d.config.KeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to forget event id: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (d *Deduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
