package policies

import (
	"context"
	"errors"

	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
)

// ErrRateLimited marks a 429 answer from the backend.
var ErrRateLimited = errors.New("policies: rate limited")

// RemoteError carries a non-2xx backend answer. Error returns the server's
// message unchanged so callers can show it as-is.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

// StatusSnapshot is the backend's answer to a status lookup.
type StatusSnapshot struct {
	Status    requests.Status
	RequestID requests.RequestID
}

// RequestsPort is the request lifecycle API of the backend.
type RequestsPort interface {
	// StatusByListing returns nil when the viewing user has no request on the listing.
	StatusByListing(ctx context.Context, listingID requests.ListingID) (*StatusSnapshot, error)
	CreateRequest(ctx context.Context, input requests.CreateInput) (requests.Request, error)
	UpdateRequestStatus(ctx context.Context, id requests.RequestID, status requests.Status) (requests.Request, error)
	ListRequests(ctx context.Context) ([]requests.Request, error)
}

// ConversationsPort lists the conversations visible to the current user.
type ConversationsPort interface {
	AllConversations(ctx context.Context) ([]conversations.Conversation, error)
}
