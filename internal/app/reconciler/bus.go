package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"rentsync/internal/app/policies"
	"rentsync/internal/domain/requests"
)

var ErrChannelRequired = errors.New("reconciler: push channel required")

// Subscriber is notified after an event has been applied to the collection.
// Applied is false when the collection ignored it (duplicate or unknown id).
type Subscriber func(ctx context.Context, ev requests.RealtimeEvent, applied bool)

// Bus attaches to the shared push channel once and fans applied events out
// to view subscribers.
type Bus struct {
	channel    policies.PushChannel
	collection *Collection
	api        policies.RequestsPort
	logger     *slog.Logger

	mu          sync.Mutex
	deregister  []func()
	subscribers map[int]Subscriber
	nextID      int
}

func NewBus(channel policies.PushChannel, collection *Collection, api policies.RequestsPort, logger *slog.Logger) *Bus {
	if collection == nil {
		collection = NewCollection()
	}
	return &Bus{
		channel:     channel,
		collection:  collection,
		api:         api,
		logger:      logger,
		subscribers: make(map[int]Subscriber),
	}
}

func (b *Bus) Collection() *Collection {
	return b.collection
}

// Attach registers one handler per event kind. Repeated calls are no-ops
// until Detach.
func (b *Bus) Attach() error {
	if b.channel == nil {
		return ErrChannelRequired
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deregister != nil {
		return nil
	}
	b.deregister = []func(){
		b.channel.Register(requests.KindNewRequest, b.Apply),
		b.channel.Register(requests.KindRequestUpdated, b.Apply),
	}
	return nil
}

// Detach removes exactly the handlers Attach registered. The connection
// itself stays open for other consumers.
func (b *Bus) Detach() {
	b.mu.Lock()
	handlers := b.deregister
	b.deregister = nil
	b.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (b *Bus) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deregister != nil
}

// Subscribe adds a view listener; the returned func removes it.
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
		})
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Apply merges one event into the collection and notifies subscribers.
func (b *Bus) Apply(ctx context.Context, ev requests.RealtimeEvent) {
	if ev.Request.ID == "" {
		b.log(slog.LevelWarn, "push event without request id dropped", "event", ev.EventName())
		return
	}
	var applied bool
	switch ev.Kind {
	case requests.KindNewRequest:
		applied = b.collection.Insert(ev.Request)
	case requests.KindRequestUpdated:
		applied = b.collection.Replace(ev.Request)
	default:
		b.log(slog.LevelWarn, "push event kind unknown", "kind", ev.Kind)
		return
	}
	b.log(slog.LevelDebug, "push event applied", "event", ev.EventName(), "request_id", ev.AggregateID(), "applied", applied)

	b.mu.Lock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, ev, applied)
	}
}

// Reconcile replaces the collection with the backend's full list. It is the
// path that repairs updates dropped for unknown ids.
func (b *Bus) Reconcile(ctx context.Context) error {
	if b.api == nil {
		return nil
	}
	items, err := b.api.ListRequests(ctx)
	if err != nil {
		return err
	}
	b.collection.Reset(items)
	b.log(slog.LevelInfo, "requests reconciled", "count", len(items))
	return nil
}

func (b *Bus) log(level slog.Level, msg string, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Log(context.Background(), level, msg, args...)
}
