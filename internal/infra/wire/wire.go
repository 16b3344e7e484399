// Package wire turns backend JSON into domain values. The backend is not
// consistent about references: a listing or user may arrive as a nested
// object or as a flat id, and ids may be named "_id" or "id".
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
)

var (
	ErrMissingID = errors.New("wire: missing id")
	ErrBadRef    = errors.New("wire: unrecognized reference")
)

// Ref is an id that may be encoded as "abc", {"_id": "abc"} or {"id": "abc"}.
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(strings.TrimSpace(s))
		return nil
	case '{':
		var obj struct {
			MongoID Ref `json:"_id"`
			ID      Ref `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = firstRef(obj.MongoID, obj.ID)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrBadRef, string(data))
	}
}

func firstRef(refs ...Ref) Ref {
	for _, r := range refs {
		if r != "" {
			return r
		}
	}
	return ""
}

// Request is the permissive wire shape of a contact request.
type Request struct {
	MongoID     Ref        `json:"_id"`
	ID          Ref        `json:"id"`
	Listing     Ref        `json:"listing"`
	ListingID   Ref        `json:"listingId"`
	Requester   Ref        `json:"requester"`
	RequesterID Ref        `json:"requesterId"`
	Lister      Ref        `json:"lister"`
	ListerID    Ref        `json:"listerId"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	MoveInDate  *time.Time `json:"moveInDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (w Request) Domain() (requests.Request, error) {
	id := firstRef(w.MongoID, w.ID)
	if id == "" {
		return requests.Request{}, fmt.Errorf("%w: request", ErrMissingID)
	}
	status, err := requests.ParseStatus(w.Status)
	if err != nil {
		return requests.Request{}, err
	}
	return requests.Request{
		ID:          requests.RequestID(id),
		ListingID:   requests.ListingID(firstRef(w.ListingID, w.Listing)),
		RequesterID: requests.UserID(firstRef(w.RequesterID, w.Requester)),
		ListerID:    requests.UserID(firstRef(w.ListerID, w.Lister)),
		Status:      status,
		Message:     w.Message,
		MoveInDate:  w.MoveInDate,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}, nil
}

func DecodeRequest(data []byte) (requests.Request, error) {
	var w Request
	if err := json.Unmarshal(data, &w); err != nil {
		return requests.Request{}, fmt.Errorf("wire: decode request: %w", err)
	}
	return w.Domain()
}

// DecodeRequests accepts a bare array or {"items": [...]}. Malformed items
// are skipped and counted.
func DecodeRequests(data []byte) ([]requests.Request, int, error) {
	raw, err := listItems(data)
	if err != nil {
		return nil, 0, fmt.Errorf("wire: decode requests: %w", err)
	}
	out := make([]requests.Request, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		r, err := DecodeRequest(item)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped, nil
}

// Conversation is the permissive wire shape of a conversation.
type Conversation struct {
	MongoID      Ref       `json:"_id"`
	ID           Ref       `json:"id"`
	Listing      Ref       `json:"listing"`
	ListingID    Ref       `json:"listingId"`
	Participants []Ref     `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (w Conversation) Domain() (conversations.Conversation, error) {
	id := firstRef(w.MongoID, w.ID)
	if id == "" {
		return conversations.Conversation{}, fmt.Errorf("%w: conversation", ErrMissingID)
	}
	conv := conversations.Conversation{
		ID:        conversations.ConversationID(id),
		ListingID: requests.ListingID(firstRef(w.ListingID, w.Listing)),
		CreatedAt: w.CreatedAt,
	}
	for _, p := range w.Participants {
		if p != "" {
			conv.Participants = append(conv.Participants, requests.UserID(p))
		}
	}
	return conv, nil
}

func DecodeConversations(data []byte) ([]conversations.Conversation, int, error) {
	raw, err := listItems(data)
	if err != nil {
		return nil, 0, fmt.Errorf("wire: decode conversations: %w", err)
	}
	out := make([]conversations.Conversation, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var w Conversation
		if err := json.Unmarshal(item, &w); err != nil {
			skipped++
			continue
		}
		conv, err := w.Domain()
		if err != nil {
			skipped++
			continue
		}
		out = append(out, conv)
	}
	return out, skipped, nil
}

// StatusAnswer is the body of the per-listing status lookup: an object with
// status and id, or null.
type StatusAnswer struct {
	Status    string `json:"status"`
	ID        Ref    `json:"id"`
	MongoID   Ref    `json:"_id"`
	RequestID Ref    `json:"requestId"`
}

// DecodeStatus returns ok=false for a null or empty body.
func DecodeStatus(data []byte) (status requests.Status, id requests.RequestID, ok bool, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", "", false, nil
	}
	var w StatusAnswer
	if err := json.Unmarshal(data, &w); err != nil {
		return "", "", false, fmt.Errorf("wire: decode status: %w", err)
	}
	if strings.TrimSpace(w.Status) == "" {
		return "", "", false, nil
	}
	return requests.Status(strings.ToLower(strings.TrimSpace(w.Status))), requests.RequestID(firstRef(w.ID, w.MongoID, w.RequestID)), true, nil
}

// ErrorMessage extracts {"error": "..."} or {"message": "..."} from an error body.
func ErrorMessage(data []byte) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return body.Message
}

func listItems(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var items []json.RawMessage
		err := json.Unmarshal(data, &items)
		return items, err
	}
	var wrapped struct {
		Items []json.RawMessage `json:"items"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return wrapped.Data, nil
}
