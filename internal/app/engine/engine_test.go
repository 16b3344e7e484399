package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/engine"
	"rentsync/internal/app/handlers/views"
	"rentsync/internal/app/listingsync"
	"rentsync/internal/app/queries"
	"rentsync/internal/clock"
	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/storage/memory"
	"rentsync/internal/testutil/fakebackend"
)

func TestEngineEndToEnd(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	backend := fakebackend.New("seeker")
	push := fakebackend.NewPushChannel()
	eng, err := engine.New(engine.Options{
		UserID:        "seeker",
		Requests:      backend,
		Conversations: backend,
		Push:          push,
		Cache:         memory.NewLookupCache(),
		Clock:         clk,
	})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Close)
	ctx := context.Background()

	snap, err := queries.Ask[views.ListingSyncQuery, listingsync.Snapshot](ctx, eng.Queries, views.ListingSyncQuery{ListingID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, requests.ViewNone, snap.Status)

	s, ok := eng.Registry.Get("L1")
	require.True(t, ok)
	created, err := s.CreateRequest(ctx, "hi", nil)
	require.NoError(t, err)

	// the lister approves elsewhere; the backend creates the conversation
	approved := created
	approved.Status = requests.StatusApproved
	backend.Put(approved)
	backend.AddConversation(conversations.Conversation{ID: "C1", ListingID: "L1"})
	push.Deliver(ctx, requests.RequestUpdatedEvent(approved, clk.Now()))

	clk.Advance(500 * time.Millisecond)
	snap = s.Snapshot()
	assert.Equal(t, requests.ViewApproved, snap.Status)
	assert.Equal(t, conversations.ConversationID("C1"), snap.ConversationID)

	list, err := queries.Ask[views.ListRequestsQuery, views.RequestCollection](ctx, eng.Queries, views.ListRequestsQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, requests.StatusApproved, list.Items[0].Status)
}

func TestEngineRequiresUser(t *testing.T) {
	_, err := engine.New(engine.Options{})
	assert.Error(t, err)
}
