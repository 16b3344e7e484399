// Package fakebackend provides in-memory stand-ins for the backend ports and
// the push channel, with call counters for assertions.
package fakebackend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rentsync/internal/app/policies"
	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
)

// Backend implements policies.RequestsPort and policies.ConversationsPort.
type Backend struct {
	mu sync.Mutex

	UserID requests.UserID
	Now    func() time.Time

	Requests      map[requests.RequestID]requests.Request
	Conversations []conversations.Conversation

	StatusErr       error
	CreateErr       error
	UpdateErr       error
	ListErr         error
	ConversationErr error

	// BeforeUpdate runs inside UpdateRequestStatus before the result is built.
	BeforeUpdate func()

	StatusCalls       int
	CreateCalls       int
	UpdateCalls       int
	ListCalls         int
	ConversationCalls int

	seq int
}

func New(userID requests.UserID) *Backend {
	return &Backend{
		UserID:   userID,
		Now:      func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
		Requests: make(map[requests.RequestID]requests.Request),
	}
}

// Put stores a request as the backend's truth.
func (b *Backend) Put(r requests.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Requests[r.ID] = r
}

// AddConversation makes a conversation discoverable.
func (b *Backend) AddConversation(conv conversations.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Conversations = append(b.Conversations, conv)
}

// SetConversationErr changes the lookup error under the lock.
func (b *Backend) SetConversationErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ConversationErr = err
}

func (b *Backend) Calls() (status, create, update, list, conv int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.StatusCalls, b.CreateCalls, b.UpdateCalls, b.ListCalls, b.ConversationCalls
}

func (b *Backend) ConversationLookups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ConversationCalls
}

func (b *Backend) StatusByListing(ctx context.Context, listingID requests.ListingID) (*policies.StatusSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StatusCalls++
	if b.StatusErr != nil {
		return nil, b.StatusErr
	}
	var latest *requests.Request
	for id := range b.Requests {
		r := b.Requests[id]
		if r.ListingID != listingID || r.RequesterID != b.UserID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}
	return &policies.StatusSnapshot{Status: latest.Status, RequestID: latest.ID}, nil
}

func (b *Backend) CreateRequest(ctx context.Context, input requests.CreateInput) (requests.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CreateCalls++
	if b.CreateErr != nil {
		return requests.Request{}, b.CreateErr
	}
	b.seq++
	now := b.Now().Add(time.Duration(b.seq) * time.Minute)
	r := requests.Request{
		ID:          requests.RequestID(fmt.Sprintf("R%d", b.seq)),
		ListingID:   input.ListingID,
		RequesterID: b.UserID,
		ListerID:    "lister",
		Status:      requests.StatusPending,
		Message:     input.Message,
		MoveInDate:  input.MoveInDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.Requests[r.ID] = r
	return r, nil
}

func (b *Backend) UpdateRequestStatus(ctx context.Context, id requests.RequestID, status requests.Status) (requests.Request, error) {
	b.mu.Lock()
	b.UpdateCalls++
	hook := b.BeforeUpdate
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.UpdateErr != nil {
		return requests.Request{}, b.UpdateErr
	}
	r, ok := b.Requests[id]
	if !ok {
		return requests.Request{}, &policies.RemoteError{StatusCode: 404, Message: "request not found"}
	}
	if err := r.Transition(status, b.Now().Add(time.Hour)); err != nil {
		return requests.Request{}, &policies.RemoteError{StatusCode: 409, Message: err.Error()}
	}
	b.Requests[id] = r
	return r, nil
}

func (b *Backend) ListRequests(ctx context.Context) ([]requests.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ListCalls++
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	out := make([]requests.Request, 0, len(b.Requests))
	for _, r := range b.Requests {
		out = append(out, r)
	}
	return out, nil
}

func (b *Backend) AllConversations(ctx context.Context) ([]conversations.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ConversationCalls++
	if b.ConversationErr != nil {
		return nil, b.ConversationErr
	}
	return append([]conversations.Conversation(nil), b.Conversations...), nil
}

var (
	_ policies.RequestsPort      = (*Backend)(nil)
	_ policies.ConversationsPort = (*Backend)(nil)
)
