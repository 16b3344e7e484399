// Package commands routes write intents (request creation, approve, reject,
// session teardown) to their handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

type Command interface {
	Key() string
}

type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// Bus dispatches commands, usually through a middleware chain.
type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
)

// Dispatch runs cmd on bus and asserts the result type. A nil result is the
// zero value of R.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	if err != nil || res == nil {
		return zero, err
	}
	value, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", ErrResultType, cmd.Key(), res)
	}
	return value, nil
}

type commandHandler func(ctx context.Context, cmd Command) (any, error)

// InMemoryBus keeps handlers in a registry keyed by Command.Key.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]commandHandler
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string]commandHandler)}
}

// RegisterRaw attaches a handler to key, replacing any previous one.
func (b *InMemoryBus) RegisterRaw(key string, handler commandHandler) {
	if key == "" {
		panic("commands: empty key registration")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = handler
}

// Dispatch refuses commands whose context is already done; a handler never
// starts a backend mutation for a caller that went away.
func (b *InMemoryBus) Dispatch(ctx context.Context, cmd Command) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[cmd.Key()]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, cmd.Key())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h(ctx, cmd)
}

// Keys lists registered command keys in lexical order.
func (b *InMemoryBus) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.handlers))
	for k := range b.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisterHandler registers a strongly typed handler on the in-memory bus.
func RegisterHandler[C Command, R any](bus *InMemoryBus, key string, handler Handler[C, R]) {
	if bus == nil {
		panic("commands: nil bus")
	}
	bus.RegisterRaw(key, func(ctx context.Context, raw Command) (any, error) {
		cmd, ok := raw.(C)
		if !ok {
			return nil, fmt.Errorf("%w: %s got %T", ErrInvalidCommand, key, raw)
		}
		return handler.Handle(ctx, cmd)
	})
}
