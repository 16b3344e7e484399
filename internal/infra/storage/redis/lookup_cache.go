package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rentsync/internal/app/resolver"
	"rentsync/internal/domain/conversations"
)

// DefaultRetention keeps an entry around after its window closes so a later
// rate-limited lookup can still serve the previous outcome.
const DefaultRetention = 10 * time.Minute

// LookupCache stores conversation lookup windows in Redis so that several
// rentsync processes of the same user share one backoff.
type LookupCache struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewLookupCache(client goredis.UniversalClient, prefix string, retention time.Duration) *LookupCache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &LookupCache{client: client, prefix: prefix, retention: retention}
}

// Connect builds a client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

type record struct {
	Timestamp      time.Time `json:"ts"`
	TTLMillis      int64     `json:"ttl_ms"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Found          bool      `json:"found"`
	RateLimited    bool      `json:"rate_limited,omitempty"`
}

func encode(entry resolver.CacheEntry) ([]byte, error) {
	return json.Marshal(record{
		Timestamp:      entry.Timestamp,
		TTLMillis:      entry.TTL.Milliseconds(),
		ConversationID: string(entry.Outcome.ConversationID),
		Found:          entry.Outcome.Found,
		RateLimited:    entry.RateLimited,
	})
}

func decode(key string, data []byte) (resolver.CacheEntry, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return resolver.CacheEntry{}, err
	}
	return resolver.CacheEntry{
		Key:       key,
		Timestamp: rec.Timestamp,
		TTL:       time.Duration(rec.TTLMillis) * time.Millisecond,
		Outcome: resolver.Outcome{
			ConversationID: conversations.ConversationID(rec.ConversationID),
			Found:          rec.Found,
		},
		RateLimited: rec.RateLimited,
	}, nil
}

func (c *LookupCache) Get(ctx context.Context, key string) (resolver.CacheEntry, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return resolver.CacheEntry{}, false, nil
	}
	if err != nil {
		return resolver.CacheEntry{}, false, err
	}
	entry, err := decode(key, data)
	if err != nil {
		return resolver.CacheEntry{}, false, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return entry, true, nil
}

func (c *LookupCache) Put(ctx context.Context, entry resolver.CacheEntry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+entry.Key, data, entry.TTL+c.retention).Err()
}

func (c *LookupCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

var _ resolver.CacheStore = (*LookupCache)(nil)
