package resolver

import (
	"context"
	"time"

	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
)

// Outcome is what a lookup learned. Found is false for a negative answer.
type Outcome struct {
	ConversationID conversations.ConversationID `json:"conversation_id,omitempty"`
	Found          bool                         `json:"found"`
}

// CacheEntry gates lookups for one key: no lookup happens while the entry is
// fresh. A rate-limited lookup rewrites the window instead of dropping it.
type CacheEntry struct {
	Key         string        `json:"key"`
	Timestamp   time.Time     `json:"timestamp"`
	TTL         time.Duration `json:"ttl"`
	Outcome     Outcome       `json:"outcome"`
	RateLimited bool          `json:"rate_limited,omitempty"`
}

func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(e.Timestamp) < e.TTL
}

func (e CacheEntry) ExpiresAt() time.Time {
	return e.Timestamp.Add(e.TTL)
}

// CacheStore persists entries. Implementations need not expire entries on
// their own; freshness is decided by the resolver.
type CacheStore interface {
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	Put(ctx context.Context, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// CacheKey composes the listing and status.
func CacheKey(listingID requests.ListingID, status requests.Status) string {
	return string(listingID) + "+" + string(status)
}
