package middleware_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/middleware"
)

type plainCommand struct{}

func (plainCommand) Key() string { return "test.plain" }

type exclusiveCommand struct{ id string }

func (exclusiveCommand) Key() string           { return "test.exclusive" }
func (c exclusiveCommand) InFlightKey() string { return c.id }

type otherExclusiveCommand struct{ id string }

func (otherExclusiveCommand) Key() string           { return "test.other" }
func (c otherExclusiveCommand) InFlightKey() string { return c.id }

type countingBus struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *countingBus) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	n := b.calls.Add(1)
	if b.release != nil {
		<-b.release
	}
	return n, nil
}

func TestChainCommandsOrder(t *testing.T) {
	var trail []string
	mark := func(name string) middleware.CommandMiddleware {
		return func(next commands.Bus) commands.Bus {
			return busFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
				trail = append(trail, name)
				return next.Dispatch(ctx, cmd)
			})
		}
	}
	bus := middleware.ChainCommands(&countingBus{}, mark("outer"), mark("inner"))
	_, err := bus.Dispatch(context.Background(), plainCommand{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, trail)
}

func TestSingleFlightPassesThroughPlainCommands(t *testing.T) {
	base := &countingBus{}
	bus := middleware.ChainCommands(base, middleware.SingleFlight())
	for i := 0; i < 3; i++ {
		_, err := bus.Dispatch(context.Background(), plainCommand{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), base.calls.Load())
}

func TestSingleFlightCollapsesSameKey(t *testing.T) {
	base := &countingBus{release: make(chan struct{})}
	bus := middleware.ChainCommands(base, middleware.SingleFlight())

	var wg sync.WaitGroup
	results := make([]any, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = bus.Dispatch(context.Background(), exclusiveCommand{id: "R1"})
		}(i)
	}
	require.Eventually(t, func() bool { return base.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(base.release)
	wg.Wait()

	assert.Equal(t, int32(1), base.calls.Load())
	for _, r := range results {
		assert.Equal(t, int32(1), r)
	}
}

func TestSingleFlightRefusesOtherCommandOnSameKey(t *testing.T) {
	base := &countingBus{release: make(chan struct{})}
	bus := middleware.ChainCommands(base, middleware.SingleFlight())

	var wg sync.WaitGroup
	var firstErr, secondErr error
	var first, second any
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = bus.Dispatch(context.Background(), exclusiveCommand{id: "R1"})
	}()
	require.Eventually(t, func() bool { return base.calls.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondErr = bus.Dispatch(context.Background(), otherExclusiveCommand{id: "R1"})
	}()
	time.Sleep(20 * time.Millisecond)
	close(base.release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Equal(t, int32(1), first)
	assert.ErrorIs(t, secondErr, middleware.ErrMutationInFlight)
	assert.Nil(t, second)
	assert.Equal(t, int32(1), base.calls.Load())
}

func TestSingleFlightKeysAreIndependent(t *testing.T) {
	base := &countingBus{}
	bus := middleware.ChainCommands(base, middleware.SingleFlight())
	_, err := bus.Dispatch(context.Background(), exclusiveCommand{id: "R1"})
	require.NoError(t, err)
	_, err = bus.Dispatch(context.Background(), exclusiveCommand{id: "R2"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), base.calls.Load())
}

func TestLoggingReturnsErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := middleware.ChainCommands(busFunc(func(context.Context, commands.Command) (any, error) {
		return nil, boom
	}), middleware.Logging(nil))
	_, err := bus.Dispatch(context.Background(), plainCommand{})
	assert.ErrorIs(t, err, boom)
}

type busFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f busFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) { return f(ctx, cmd) }
