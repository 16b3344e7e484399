package requests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusPending, true},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusRejected, false},
		{StatusRejected, StatusPending, false},
		{StatusRejected, StatusApproved, false},
		{StatusPending, Status("archived"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionRejectsReversal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Request{ID: "R1", Status: StatusPending}

	require.NoError(t, r.Transition(StatusApproved, now))
	assert.Equal(t, StatusApproved, r.Status)
	assert.Equal(t, now, r.UpdatedAt)

	assert.ErrorIs(t, r.Transition(StatusPending, now), ErrInvalidTransition)
	assert.Equal(t, StatusApproved, r.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Approved ")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)

	_, err = ParseStatus("cancelled")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSortForDisplayPendingFirstThenNewest(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []Request{
		{ID: "a", Status: StatusPending, CreatedAt: base.Add(1 * time.Hour)},
		{ID: "b", Status: StatusApproved, CreatedAt: base.Add(5 * time.Hour)},
		{ID: "c", Status: StatusPending, CreatedAt: base.Add(3 * time.Hour)},
		{ID: "d", Status: StatusRejected, CreatedAt: base.Add(4 * time.Hour)},
	}

	SortForDisplay(items)

	assert.Equal(t, []RequestID{"c", "a", "b", "d"}, ids(items))
}

func TestSortForDisplayIsStableForTies(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []Request{
		{ID: "x", Status: StatusApproved, CreatedAt: at},
		{ID: "y", Status: StatusRejected, CreatedAt: at},
		{ID: "z", Status: StatusPending, CreatedAt: at},
	}

	SortForDisplay(items)
	first := ids(items)
	SortForDisplay(items)

	assert.Equal(t, []RequestID{"z", "x", "y"}, first)
	assert.Equal(t, first, ids(items))
}

func TestRealtimeEventNames(t *testing.T) {
	ev := RequestUpdatedEvent(Request{ID: "R9"}, time.Unix(10, 0))
	assert.Equal(t, "request.request_updated", ev.EventName())
	assert.Equal(t, "R9", ev.AggregateID())
	assert.True(t, ev.Kind.Valid())
	assert.False(t, EventKind("deleted").Valid())
}

func ids(items []Request) []RequestID {
	out := make([]RequestID, 0, len(items))
	for _, r := range items {
		out = append(out, r.ID)
	}
	return out
}
