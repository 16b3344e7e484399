package actions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/handlers/actions"
	"rentsync/internal/app/middleware"
	"rentsync/internal/app/policies"
	"rentsync/internal/app/reconciler"
	"rentsync/internal/domain/requests"
	"rentsync/internal/testutil/fakebackend"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	backend    *fakebackend.Backend
	bus        *reconciler.Bus
	dispatcher actions.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := fakebackend.New("lister")
	bus := reconciler.NewBus(fakebackend.NewPushChannel(), nil, backend, nil)

	cmdBus := commands.NewInMemoryBus()
	actions.Register(cmdBus, &actions.StatusChangeHandler{API: backend, Merger: bus})
	chained := middleware.ChainCommands(cmdBus, middleware.SingleFlight())

	for _, r := range []requests.Request{
		{ID: "R1", ListingID: "L1", RequesterID: "s1", ListerID: "lister", Status: requests.StatusPending, CreatedAt: base},
		{ID: "R2", ListingID: "L1", RequesterID: "s2", ListerID: "lister", Status: requests.StatusPending, CreatedAt: base.Add(time.Minute)},
	} {
		backend.Put(r)
	}
	require.NoError(t, bus.Reconcile(context.Background()))
	return &fixture{backend: backend, bus: bus, dispatcher: actions.Dispatcher{Bus: chained}}
}

func TestApproveReplacesWithCanonicalObject(t *testing.T) {
	f := newFixture(t)

	got, err := f.dispatcher.Approve(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusApproved, got.Status)

	items := f.bus.Collection().Items()
	require.Len(t, items, 2)
	assert.Equal(t, requests.RequestID("R2"), items[0].ID)
	assert.Equal(t, got, items[1])
}

func TestRejectIsSymmetric(t *testing.T) {
	f := newFixture(t)

	got, err := f.dispatcher.Reject(context.Background(), "R2")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusRejected, got.Status)

	stored, ok := f.bus.Collection().Get("R2")
	require.True(t, ok)
	assert.Equal(t, requests.StatusRejected, stored.Status)
}

func TestFailureSurfacesMessageAndLeavesState(t *testing.T) {
	f := newFixture(t)
	before := f.bus.Collection().Items()
	f.backend.UpdateErr = &policies.RemoteError{StatusCode: 403, Message: "Only the listing owner can do that"}

	_, err := f.dispatcher.Approve(context.Background(), "R1")
	require.Error(t, err)
	assert.Equal(t, "Only the listing owner can do that", err.Error())
	assert.Equal(t, before, f.bus.Collection().Items())
}

func TestTransitionConflictIsReported(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.Approve(context.Background(), "R1")
	require.NoError(t, err)

	_, err = f.dispatcher.Reject(context.Background(), "R1")
	var remote *policies.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 409, remote.StatusCode)
}

func TestConcurrentApproveSharesOneCall(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	f.backend.BeforeUpdate = func() {
		entered <- struct{}{}
		<-release
	}

	var wg sync.WaitGroup
	results := make([]requests.Request, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.dispatcher.Approve(context.Background(), "R1")
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = f.dispatcher.Approve(context.Background(), "R1")
	}()
	// give the second dispatch time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	_, _, updates, _, _ := f.backend.Calls()
	assert.Equal(t, 1, updates)
}

func TestApproveAndRejectOnSameRequestRunOnce(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	f.backend.BeforeUpdate = func() {
		entered <- struct{}{}
		<-release
	}

	var wg sync.WaitGroup
	var approved requests.Request
	var approveErr, rejectErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		approved, approveErr = f.dispatcher.Approve(context.Background(), "R1")
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, rejectErr = f.dispatcher.Reject(context.Background(), "R1")
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, approveErr)
	assert.Equal(t, requests.StatusApproved, approved.Status)
	assert.ErrorIs(t, rejectErr, middleware.ErrMutationInFlight)
	_, _, updates, _, _ := f.backend.Calls()
	assert.Equal(t, 1, updates)
	got, ok := f.bus.Collection().Get("R1")
	require.True(t, ok)
	assert.Equal(t, requests.StatusApproved, got.Status)
}

func TestEmptyRequestID(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.Reject(context.Background(), "  ")
	assert.ErrorIs(t, err, actions.ErrRequestIDRequired)
}
