//go:build integration || e2e

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// FlushDB flushes database 0 on the test Redis instance at addr, so
// reservation-store integration tests start from an empty keyspace.
func FlushDB(t *testing.T, addr string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing test redis at %s: %v", addr, err)
	}
}
