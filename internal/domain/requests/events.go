package requests

import "time"

type EventKind string

const (
	KindNewRequest     EventKind = "new_request"
	KindRequestUpdated EventKind = "request_updated"
)

func (k EventKind) Valid() bool {
	return k == KindNewRequest || k == KindRequestUpdated
}

// RealtimeEvent is a lifecycle change delivered by the push channel.
// Delivery is at-least-once, so consumers must apply it idempotently.
type RealtimeEvent struct {
	Kind       EventKind
	Request    Request
	ReceivedAt time.Time
}

func NewRequestEvent(r Request, at time.Time) RealtimeEvent {
	return RealtimeEvent{Kind: KindNewRequest, Request: r, ReceivedAt: at}
}

func RequestUpdatedEvent(r Request, at time.Time) RealtimeEvent {
	return RealtimeEvent{Kind: KindRequestUpdated, Request: r, ReceivedAt: at}
}

func (e RealtimeEvent) EventName() string     { return "request." + string(e.Kind) }
func (e RealtimeEvent) AggregateID() string   { return string(e.Request.ID) }
func (e RealtimeEvent) OccurredAt() time.Time { return e.ReceivedAt }
