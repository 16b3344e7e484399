package conversations

import (
	"time"

	"rentsync/internal/domain/requests"
)

type ConversationID string

// Conversation is created by the backend once a request is approved.
// Clients only discover it.
type Conversation struct {
	ID           ConversationID
	ListingID    requests.ListingID
	Participants []requests.UserID
	CreatedAt    time.Time
}

// FindByListing returns the first conversation bound to the listing.
// Conversations are 1:1 with approved requests, so the first match is enough.
func FindByListing(items []Conversation, listingID requests.ListingID) (Conversation, bool) {
	for _, conv := range items {
		if conv.ListingID == listingID {
			return conv, true
		}
	}
	return Conversation{}, false
}

func (c Conversation) HasParticipant(id requests.UserID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}
