package commands_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/commands"
)

type echoCommand struct{ text string }

func (echoCommand) Key() string { return "test.echo" }

type echoHandler struct{ calls int }

func (h *echoHandler) Handle(_ context.Context, cmd echoCommand) (string, error) {
	h.calls++
	return cmd.text, nil
}

func TestDispatchTyped(t *testing.T) {
	bus := commands.NewInMemoryBus()
	h := &echoHandler{}
	commands.RegisterHandler[echoCommand, string](bus, "test.echo", h)

	out, err := commands.Dispatch[echoCommand, string](context.Background(), bus, echoCommand{text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, []string{"test.echo"}, bus.Keys())

	_, err = commands.Dispatch[echoCommand, int](context.Background(), bus, echoCommand{text: "hi"})
	assert.ErrorIs(t, err, commands.ErrResultType)
}

func TestDispatchUnknownKey(t *testing.T) {
	_, err := commands.Dispatch[echoCommand, string](context.Background(), commands.NewInMemoryBus(), echoCommand{})
	assert.ErrorIs(t, err, commands.ErrHandlerNotFound)
	assert.Contains(t, err.Error(), "test.echo")

	_, err = commands.Dispatch[echoCommand, string](context.Background(), nil, echoCommand{})
	assert.ErrorIs(t, err, commands.ErrNilBus)
}

func TestDispatchSkipsCancelledCaller(t *testing.T) {
	bus := commands.NewInMemoryBus()
	h := &echoHandler{}
	commands.RegisterHandler[echoCommand, string](bus, "test.echo", h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bus.Dispatch(ctx, echoCommand{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.calls)
}
