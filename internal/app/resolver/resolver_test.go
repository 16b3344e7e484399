package resolver_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/policies"
	"rentsync/internal/app/resolver"
	"rentsync/internal/clock"
	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/storage/memory"
	"rentsync/internal/testutil/fakebackend"
)

func newResolver(t *testing.T, backend policies.ConversationsPort) (*resolver.Resolver, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	r, err := resolver.New(backend, memory.NewLookupCache(), clk, resolver.Config{}, nil)
	require.NoError(t, err)
	return r, clk
}

func TestResolveSkipsNonApproved(t *testing.T) {
	backend := fakebackend.New("seeker")
	r, _ := newResolver(t, backend)

	for _, status := range []requests.Status{requests.StatusPending, requests.StatusRejected} {
		res, err := r.Resolve(context.Background(), "L123", status)
		require.NoError(t, err)
		assert.False(t, res.Resolved)
	}
	assert.Equal(t, 0, backend.ConversationLookups())
}

func TestResolveCacheGatesWithinTTL(t *testing.T) {
	backend := fakebackend.New("seeker")
	backend.AddConversation(conversations.Conversation{ID: "C1", ListingID: "L123"})
	r, clk := newResolver(t, backend)

	first, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	second, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.ConversationLookups())
	assert.Equal(t, conversations.ConversationID("C1"), first.ConversationID)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	clk.Advance(20 * time.Second)
	_, err = r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.ConversationLookups())
}

func TestResolveCachesNegativeOutcome(t *testing.T) {
	backend := fakebackend.New("seeker")
	backend.AddConversation(conversations.Conversation{ID: "C9", ListingID: "other"})
	r, clk := newResolver(t, backend)

	res, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, clk.Now().Add(resolver.DefaultTTL), res.RetryAt)

	res, err = r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, backend.ConversationLookups())
}

func TestResolveRateLimitBacksOffSixtySeconds(t *testing.T) {
	backend := fakebackend.New("seeker")
	backend.SetConversationErr(policies.ErrRateLimited)
	r, clk := newResolver(t, backend)

	res, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.True(t, res.RateLimited)
	assert.False(t, res.Resolved)
	assert.Equal(t, 1, backend.ConversationLookups())

	backend.SetConversationErr(nil)
	backend.AddConversation(conversations.Conversation{ID: "C1", ListingID: "L123"})

	clk.Advance(59 * time.Second)
	res, err = r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, backend.ConversationLookups())

	clk.Advance(time.Second)
	res, err = r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.ConversationLookups())
	assert.Equal(t, conversations.ConversationID("C1"), res.ConversationID)
}

func TestResolveRateLimitKeepsResolvedOutcome(t *testing.T) {
	backend := fakebackend.New("seeker")
	backend.AddConversation(conversations.Conversation{ID: "C1", ListingID: "L123"})
	r, clk := newResolver(t, backend)

	_, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)

	clk.Advance(31 * time.Second)
	backend.SetConversationErr(policies.ErrRateLimited)
	res, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)

	assert.True(t, res.RateLimited)
	assert.True(t, res.Resolved)
	assert.Equal(t, conversations.ConversationID("C1"), res.ConversationID)
}

func TestResolveOtherErrorClearsAndAllowsRetry(t *testing.T) {
	backend := fakebackend.New("seeker")
	backend.AddConversation(conversations.Conversation{ID: "C1", ListingID: "L123"})
	r, clk := newResolver(t, backend)
	_, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	clk.Advance(31 * time.Second)

	backend.SetConversationErr(errors.New("bad gateway"))
	res, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.Error(t, err)
	assert.False(t, res.Resolved)
	assert.Empty(t, res.ConversationID)

	backend.SetConversationErr(nil)
	res, err = r.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, 3, backend.ConversationLookups())
}

func TestResolveSharesConcurrentLookups(t *testing.T) {
	backend := &blockingConversations{release: make(chan struct{}), started: make(chan struct{}, 8)}
	r, _ := newResolver(t, backend)

	var wg sync.WaitGroup
	results := make([]resolver.Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), "L123", requests.StatusApproved)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	<-backend.started
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, 1, backend.count())
	for _, res := range results {
		assert.Equal(t, conversations.ConversationID("C7"), res.ConversationID)
	}
}

func TestResolverIsolation(t *testing.T) {
	backend := fakebackend.New("seeker")
	backend.SetConversationErr(policies.ErrRateLimited)
	a, _ := newResolver(t, backend)
	b, _ := newResolver(t, backend)

	_, err := a.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)
	_, err = b.Resolve(context.Background(), "L123", requests.StatusApproved)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.ConversationLookups())
}

type blockingConversations struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingConversations) AllConversations(ctx context.Context) ([]conversations.Conversation, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return []conversations.Conversation{{ID: "C7", ListingID: "L123"}}, nil
}

func (b *blockingConversations) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
