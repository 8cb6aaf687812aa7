package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDisabledCacheAndGuard(t *testing.T) {
	ctx := context.Background()
	client, err := Open(ctx, Config{})
	if err != nil || client != nil {
		t.Fatalf("disabled redis: client=%v err=%v", client, err)
	}

	guard := NewGuard(nil, "")
	release, ok := guard.Acquire(ctx, "k", time.Second)
	if !ok {
		t.Fatalf("disabled guard must grant")
	}
	release()

	c := NewJSONCache(nil, "")
	c.Set(ctx, "k", []byte(`{}`), time.Second)
	if _, hit := c.Get(ctx, "k"); hit {
		t.Fatalf("disabled cache must miss")
	}
}

// TestGuardAgainstRedis runs only when REDIS_ADDR points at a disposable server.
func TestGuardAgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Open(ctx, Config{Addr: addr})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = client.Close() }()

	prefix := "test-" + uuid.NewString()
	guard := NewGuard(client, prefix)
	release, ok := guard.Acquire(ctx, "checkout-1", 5*time.Second)
	if !ok {
		t.Fatalf("first acquire failed")
	}
	if _, again := guard.Acquire(ctx, "checkout-1", 5*time.Second); again {
		t.Fatalf("second acquire must be refused while held")
	}
	release()
	releaseAgain, ok := guard.Acquire(ctx, "checkout-1", 5*time.Second)
	if !ok {
		t.Fatalf("acquire after release failed")
	}
	releaseAgain()

	c := NewJSONCache(client, prefix)
	c.Set(ctx, "doc", []byte(`{"a":1}`), 5*time.Second)
	got, hit := c.Get(ctx, "doc")
	if !hit || string(got) != `{"a":1}` {
		t.Fatalf("cache get = %q hit=%v", got, hit)
	}
}
