package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/resolver"
)

func TestEncodeDecodeKeepsWindow(t *testing.T) {
	entry := resolver.CacheEntry{
		Key:         "L1+approved",
		Timestamp:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		TTL:         60 * time.Second,
		Outcome:     resolver.Outcome{ConversationID: "C1", Found: true},
		RateLimited: true,
	}
	data, err := encode(entry)
	require.NoError(t, err)
	got, err := decode(entry.Key, data)
	require.NoError(t, err)
	assert.True(t, entry.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, entry.TTL, got.TTL)
	assert.Equal(t, entry.Outcome, got.Outcome)
	assert.True(t, got.RateLimited)
	assert.Equal(t, entry.ExpiresAt().Unix(), got.ExpiresAt().Unix())
}

// Runs against a live server when REDIS_TEST_ADDR is set.
func TestLookupCacheLive(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	cache := NewLookupCache(client, "rentsync:test:"+t.Name()+":", time.Minute)
	_, ok, err := cache.Get(ctx, "L1+approved")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := resolver.CacheEntry{Key: "L1+approved", Timestamp: time.Now().UTC(), TTL: 30 * time.Second}
	require.NoError(t, cache.Put(ctx, entry))
	got, ok, err := cache.Get(ctx, "L1+approved")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry.TTL, got.TTL)

	require.NoError(t, cache.Delete(ctx, "L1+approved"))
	_, ok, err = cache.Get(ctx, "L1+approved")
	require.NoError(t, err)
	assert.False(t, ok)
}
