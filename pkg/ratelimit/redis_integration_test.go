//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_Increment(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		count, resetAt, err := store.Increment(ctx, "192.0.2.1", 2*time.Minute)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}

		tolerance := 5 * time.Second
		if until := time.Until(resetAt); until > 2*time.Minute || until < 2*time.Minute-tolerance {
			t.Errorf("resetAt in %v, want approximately 2m", until)
		}
	}

	ttl, err := redisClient.PTTL(ctx, RedisKeyPrefix+"192.0.2.1").Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 {
		t.Errorf("counter key has no expiry (PTTL = %v)", ttl)
	}
}

func TestRedisStore_Integration_WindowExpires(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient)
	ctx := context.Background()

	if _, _, err := store.Increment(ctx, "k", 200*time.Millisecond); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	count, _, err := store.Increment(ctx, "k", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count after expiry = %d, want 1", count)
	}
}

func TestRedisStore_Integration_SharedAcrossLimiters(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	cfg := Config{Name: "shared", Limit: 10, Window: time.Minute}
	a, _ := NewLimiter(cfg, NewRedisStore(redisClient), testLogger)
	b, _ := NewLimiter(cfg, NewRedisStore(redisClient), testLogger)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		limiter := a
		if i%2 == 1 {
			limiter = b
		}
		wg.Add(1)
		go func(l *Limiter) {
			defer wg.Done()
			if l.Allow(ctx, "192.0.2.7").Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(limiter)
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d across two gateways, want 10", allowed)
	}
}

func TestRedisStore_Integration_Reset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := store.Increment(ctx, "k", time.Minute); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	if err := store.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	count, _, err := store.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count after Reset = %d, want 1", count)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
