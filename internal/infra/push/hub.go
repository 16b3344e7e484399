// Package push fans normalized lifecycle events from a transport (websocket
// or broker) out to registered handlers.
package push

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"rentsync/internal/app/policies"
	"rentsync/internal/domain/requests"
)

// Hub implements policies.PushChannel. Transports call Publish; views
// register and deregister handlers without touching the connection.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[requests.EventKind]map[uint64]policies.PushHandler
	nextID   uint64

	connected atomic.Bool
	delivered atomic.Int64
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		handlers: make(map[requests.EventKind]map[uint64]policies.PushHandler),
	}
}

func (h *Hub) Register(kind requests.EventKind, handler policies.PushHandler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers[kind] == nil {
		h.handlers[kind] = make(map[uint64]policies.PushHandler)
	}
	id := h.nextID
	h.nextID++
	h.handlers[kind][id] = handler
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.handlers[kind], id)
		})
	}
}

// Publish delivers ev to the handlers registered for its kind, in the
// caller's goroutine.
func (h *Hub) Publish(ctx context.Context, ev requests.RealtimeEvent) {
	h.mu.RLock()
	targets := make([]policies.PushHandler, 0, len(h.handlers[ev.Kind]))
	for _, fn := range h.handlers[ev.Kind] {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()
	if len(targets) == 0 && h.logger != nil {
		h.logger.Debug("push event without handlers", "event", ev.EventName())
	}
	for _, fn := range targets {
		fn(ctx, ev)
	}
	h.delivered.Add(1)
}

func (h *Hub) HandlerCount(kind requests.EventKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[kind])
}

// SetConnected is called by the transport when its link goes up or down.
func (h *Hub) SetConnected(up bool) {
	if h.connected.Swap(up) != up && h.logger != nil {
		h.logger.Info("push transport state changed", "connected", up)
	}
}

func (h *Hub) Connected() bool { return h.connected.Load() }

func (h *Hub) Delivered() int64 { return h.delivered.Load() }

var _ policies.PushChannel = (*Hub)(nil)
