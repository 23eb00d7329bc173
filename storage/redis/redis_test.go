package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client for testing.
// Requires Redis running on localhost:6379.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func TestNew(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("Expected error for nil client")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	deduper, err := New(client, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if deduper.config.KeyPrefix != "gocashier:event:" {
		t.Errorf("Expected default key prefix, got %q", deduper.config.KeyPrefix)
	}
	if deduper.config.EventTTL != 96*time.Hour {
		t.Errorf("Expected default TTL, got %v", deduper.config.EventTTL)
	}
}

func TestDeduper_Seen(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	deduper, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	seen, err := deduper.Seen(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("First delivery should not be seen")
	}

	seen, err = deduper.Seen(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if !seen {
		t.Error("Second delivery should be seen")
	}

	// A different event id is independent.
	seen, err = deduper.Seen(ctx, "evt_2")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("Different event id should not be seen")
	}

	// Empty ids are never deduplicated.
	seen, err = deduper.Seen(ctx, "")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("Empty event id should not be seen")
	}
}

func TestDeduper_Forget(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	deduper, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := deduper.Seen(ctx, "evt_1"); err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if err := deduper.Forget(ctx, "evt_1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	seen, err := deduper.Seen(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("Forgotten event should not be seen")
	}
}

func TestDeduper_TTL(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	config := DefaultConfig()
	config.EventTTL = 50 * time.Millisecond
	deduper, err := New(client, config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := deduper.Seen(ctx, "evt_1"); err != nil {
		t.Fatalf("Seen failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	seen, err := deduper.Seen(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("Expired event id should not be seen")
	}
}
