package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"rentsync/internal/app/policies"
	"rentsync/internal/clock"
	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
)

const (
	DefaultTTL              = 30 * time.Second
	DefaultRateLimitBackoff = 60 * time.Second
)

var ErrCacheRequired = errors.New("resolver: cache store required")

type Config struct {
	TTL              time.Duration
	RateLimitBackoff time.Duration
}

// Result describes one Resolve call. RetryAt is when the cache window that
// produced the result ends; zero when no lookup was attempted.
type Result struct {
	ConversationID conversations.ConversationID
	Resolved       bool
	FromCache      bool
	RateLimited    bool
	RetryAt        time.Time
}

// Resolver discovers the conversation created for an approved request.
// Each instance owns its cache window, so independent views never share
// backoff state unless they are given the same CacheStore.
type Resolver struct {
	api     policies.ConversationsPort
	cache   CacheStore
	clock   clock.Clock
	ttl     time.Duration
	backoff time.Duration
	logger  *slog.Logger
	flight  singleflight.Group
}

func New(api policies.ConversationsPort, cache CacheStore, clk clock.Clock, cfg Config, logger *slog.Logger) (*Resolver, error) {
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = DefaultRateLimitBackoff
	}
	return &Resolver{
		api:     api,
		cache:   cache,
		clock:   clk,
		ttl:     cfg.TTL,
		backoff: cfg.RateLimitBackoff,
		logger:  logger,
	}, nil
}

// Resolve looks up the conversation for an approved request on the listing.
// Any other status is a no-op. A 429 is not an error: the cached window is
// pushed out by the backoff and the previous outcome is kept. Other lookup
// errors drop the cache entry so the next trigger retries.
func (r *Resolver) Resolve(ctx context.Context, listingID requests.ListingID, status requests.Status) (Result, error) {
	if status != requests.StatusApproved {
		return Result{}, nil
	}
	key := CacheKey(listingID, status)
	v, err, _ := r.flight.Do(key, func() (any, error) {
		return r.resolve(ctx, listingID, key)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Invalidate forgets the cached window for the listing.
func (r *Resolver) Invalidate(ctx context.Context, listingID requests.ListingID) error {
	return r.cache.Delete(ctx, CacheKey(listingID, requests.StatusApproved))
}

func (r *Resolver) resolve(ctx context.Context, listingID requests.ListingID, key string) (Result, error) {
	now := r.clock.Now()
	entry, cached, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log(slog.LevelWarn, "lookup cache read failed", "key", key, "error", err)
		cached = false
	}
	if cached && entry.Fresh(now) {
		return Result{
			ConversationID: entry.Outcome.ConversationID,
			Resolved:       entry.Outcome.Found,
			FromCache:      true,
			RateLimited:    entry.RateLimited,
			RetryAt:        entry.ExpiresAt(),
		}, nil
	}

	items, err := r.api.AllConversations(ctx)
	if errors.Is(err, policies.ErrRateLimited) {
		var kept Outcome
		if cached {
			kept = entry.Outcome
		}
		next := CacheEntry{Key: key, Timestamp: now, TTL: r.backoff, Outcome: kept, RateLimited: true}
		r.put(ctx, next)
		r.log(slog.LevelInfo, "conversation lookup rate limited", "listing_id", listingID, "retry_at", next.ExpiresAt())
		return Result{
			ConversationID: kept.ConversationID,
			Resolved:       kept.Found,
			RateLimited:    true,
			RetryAt:        next.ExpiresAt(),
		}, nil
	}
	if err != nil {
		if delErr := r.cache.Delete(ctx, key); delErr != nil {
			r.log(slog.LevelWarn, "lookup cache delete failed", "key", key, "error", delErr)
		}
		return Result{}, fmt.Errorf("resolver: lookup conversations: %w", err)
	}

	conv, found := conversations.FindByListing(items, listingID)
	next := CacheEntry{
		Key:       key,
		Timestamp: now,
		TTL:       r.ttl,
		Outcome:   Outcome{ConversationID: conv.ID, Found: found},
	}
	r.put(ctx, next)
	r.log(slog.LevelDebug, "conversation lookup done", "listing_id", listingID, "found", found, "conversation_id", conv.ID)
	return Result{ConversationID: conv.ID, Resolved: found, RetryAt: next.ExpiresAt()}, nil
}

func (r *Resolver) put(ctx context.Context, entry CacheEntry) {
	if err := r.cache.Put(ctx, entry); err != nil {
		r.log(slog.LevelWarn, "lookup cache write failed", "key", entry.Key, "error", err)
	}
}

func (r *Resolver) log(level slog.Level, msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Log(context.Background(), level, msg, args...)
}
