package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	// Test connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return redisClient, cleanup
}

func TestTokenBucket_Allow(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	// Create token bucket with 5 tokens, refill 5 per minute
	bucket := NewTokenBucket(redisClient, 5, 5)

	ctx := context.Background()
	caller := "42"
	action := "comments"

	// Consume tokens up to the limit
	for i := 0; i < 5; i++ {
		allowed, err := bucket.Allow(ctx, caller, action)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}

	// The 6th request is denied
	allowed, err := bucket.Allow(ctx, caller, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected request to be denied after bucket is empty")
	}
}

func TestTokenBucket_CallersAreIndependent(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 1, 1)
	ctx := context.Background()

	allowed, err := bucket.Allow(ctx, "alice", "comments")
	if err != nil || !allowed {
		t.Fatalf("Expected alice's first request to be allowed, got allowed=%v err=%v", allowed, err)
	}

	allowed, err = bucket.Allow(ctx, "alice", "bootstrap")
	if err != nil || !allowed {
		t.Fatalf("Expected a different action to have its own bucket, got allowed=%v err=%v", allowed, err)
	}

	allowed, err = bucket.Allow(ctx, "bob", "comments")
	if err != nil || !allowed {
		t.Fatalf("Expected bob's first request to be allowed, got allowed=%v err=%v", allowed, err)
	}

	allowed, err = bucket.Allow(ctx, "alice", "comments")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected alice's second request to be denied")
	}
}

func TestTokenBucket_Remaining(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 3, 3)
	ctx := context.Background()

	remaining, err := bucket.Remaining(ctx, "42", "comments")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("Expected 3 tokens in a fresh bucket, got %d", remaining)
	}

	if _, err := bucket.Allow(ctx, "42", "comments"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	remaining, err = bucket.Remaining(ctx, "42", "comments")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("Expected 2 tokens after one consume, got %d", remaining)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 1, 1)
	ctx := context.Background()

	if _, err := bucket.Allow(ctx, "42", "comments"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	allowed, err := bucket.Allow(ctx, "42", "comments")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected bucket to be empty")
	}

	if err := bucket.Reset(ctx, "42", "comments"); err != nil {
		t.Fatalf("Failed to reset bucket: %v", err)
	}

	allowed, err = bucket.Allow(ctx, "42", "comments")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("Expected request to be allowed after reset")
	}
}
