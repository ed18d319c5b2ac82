//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisAddr is used when STARGATE_TEST_REDIS_ADDR is unset.
const DefaultRedisAddr = "127.0.0.1:6379"

// RedisAddr returns the address of the test Redis server.
func RedisAddr() string {
	if addr := os.Getenv("STARGATE_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return DefaultRedisAddr
}

// SkipIfNoRedis skips the test if the test Redis server is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// FlushDB flushes a specific Redis database and flushes it again on cleanup.
func FlushDB(t *testing.T, addr string, db int) {
	t.Helper()

	flush := func() error {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		defer client.Close()
		return client.FlushDB(context.Background()).Err()
	}
	if err := flush(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
	t.Cleanup(func() { _ = flush() })
}

// WriteSingleEntry writes a hash at "table|key".
func WriteSingleEntry(t *testing.T, addr string, db int, table, key string, fields map[string]string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := client.HSet(context.Background(), table+"|"+key, args...).Err(); err != nil {
		t.Fatalf("writing %s|%s: %v", table, key, err)
	}
}

// ReadEntry reads the hash at "table|key".
func ReadEntry(t *testing.T, addr string, db int, table, key string) map[string]string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	vals, err := client.HGetAll(context.Background(), table+"|"+key).Result()
	if err != nil {
		t.Fatalf("reading %s|%s: %v", table, key, err)
	}
	return vals
}

// ReadString reads a plain string key, returning "" when it is absent.
func ReadString(t *testing.T, addr string, db int, key string) string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	v, err := client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return v
}

// EntryExists checks whether "table|key" exists.
func EntryExists(t *testing.T, addr string, db int, table, key string) bool {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	n, err := client.Exists(context.Background(), table+"|"+key).Result()
	if err != nil {
		t.Fatalf("checking existence of %s|%s: %v", table, key, err)
	}
	return n > 0
}
