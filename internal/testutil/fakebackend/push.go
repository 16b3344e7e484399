package fakebackend

import (
	"context"
	"sync"

	"rentsync/internal/app/policies"
	"rentsync/internal/domain/requests"
)

// PushChannel records registrations and delivers events synchronously.
type PushChannel struct {
	mu       sync.Mutex
	next     int
	handlers map[requests.EventKind]map[int]policies.PushHandler
	Attaches int
}

func NewPushChannel() *PushChannel {
	return &PushChannel{handlers: make(map[requests.EventKind]map[int]policies.PushHandler)}
}

func (p *PushChannel) Register(kind requests.EventKind, handler policies.PushHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Attaches++
	if p.handlers[kind] == nil {
		p.handlers[kind] = make(map[int]policies.PushHandler)
	}
	id := p.next
	p.next++
	p.handlers[kind][id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers[kind], id)
	}
}

// HandlerCount returns the number of live registrations for kind.
func (p *PushChannel) HandlerCount(kind requests.EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers[kind])
}

// Deliver hands ev to every handler registered for its kind.
func (p *PushChannel) Deliver(ctx context.Context, ev requests.RealtimeEvent) {
	p.mu.Lock()
	hs := make([]policies.PushHandler, 0, len(p.handlers[ev.Kind]))
	for _, h := range p.handlers[ev.Kind] {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	for _, h := range hs {
		h(ctx, ev)
	}
}

var _ policies.PushChannel = (*PushChannel)(nil)
