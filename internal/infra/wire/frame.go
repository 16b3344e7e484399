package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentsync/internal/domain/requests"
)

var ErrUnknownEvent = errors.New("wire: unknown event")

// Frame is one push message. Websocket frames use {"event", "data"};
// broker messages are CloudEvents with a "request.<kind>.v1" type.
type Frame struct {
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Time        *time.Time      `json:"time"`
}

// DeliveryID is the CloudEvents id when present.
func (f Frame) DeliveryID() string { return f.ID }

// Kind maps the frame's name to an event kind.
func (f Frame) Kind() (requests.EventKind, error) {
	name := f.Event
	if name == "" {
		name = f.Type
	}
	name = strings.TrimPrefix(name, "request.")
	name = strings.TrimSuffix(name, ".v1")
	kind := requests.EventKind(name)
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event+f.Type)
	}
	return kind, nil
}

// DecodeFrame parses a push message into a lifecycle event stamped with
// receivedAt.
func DecodeFrame(data []byte, receivedAt time.Time) (requests.RealtimeEvent, Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return requests.RealtimeEvent{}, Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	kind, err := f.Kind()
	if err != nil {
		return requests.RealtimeEvent{}, f, err
	}
	payload := f.Data
	// some emitters wrap the request as {"request": {...}}
	var wrapped struct {
		Request json.RawMessage `json:"request"`
	}
	if json.Unmarshal(payload, &wrapped) == nil && len(wrapped.Request) > 0 {
		payload = wrapped.Request
	}
	r, err := DecodeRequest(payload)
	if err != nil {
		return requests.RealtimeEvent{}, f, err
	}
	return requests.RealtimeEvent{Kind: kind, Request: r, ReceivedAt: receivedAt}, f, nil
}

// EncodeFrame is the websocket shape of ev.
func EncodeFrame(ev requests.RealtimeEvent) ([]byte, error) {
	data, err := json.Marshal(FromDomain(ev.Request))
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: string(ev.Kind), Data: data})
}

// OutRequest is the flat encoding used when re-emitting requests.
type OutRequest struct {
	ID          string     `json:"id"`
	ListingID   string     `json:"listingId"`
	RequesterID string     `json:"requesterId"`
	ListerID    string     `json:"listerId,omitempty"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	MoveInDate  *time.Time `json:"moveInDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func FromDomain(r requests.Request) OutRequest {
	return OutRequest{
		ID:          string(r.ID),
		ListingID:   string(r.ListingID),
		RequesterID: string(r.RequesterID),
		ListerID:    string(r.ListerID),
		Status:      string(r.Status),
		Message:     r.Message,
		MoveInDate:  r.MoveInDate,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
