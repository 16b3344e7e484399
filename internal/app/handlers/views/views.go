package views

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/listingsync"
	"rentsync/internal/app/queries"
	"rentsync/internal/app/reconciler"
	"rentsync/internal/domain/requests"
)

const (
	listingSyncKey    = "listings.sync.get"
	listRequestsKey   = "requests.list"
	createRequestKey  = "listings.requests.create"
	closeListingKey   = "listings.sync.close"
	maxRequestMessage = 2000
)

var (
	ErrMessageTooLong = errors.New("views: message too long")
	ErrSessionMissing = errors.New("views: listing session not open")
)

type ListingSyncQuery struct {
	ListingID requests.ListingID
	Refresh   bool
}

func (q ListingSyncQuery) Key() string { return listingSyncKey }

// ListingSyncHandler opens the listing's session on first use. Later calls
// only read the snapshot unless Refresh is set.
type ListingSyncHandler struct {
	Registry *listingsync.Registry
}

func (h *ListingSyncHandler) Handle(ctx context.Context, q ListingSyncQuery) (listingsync.Snapshot, error) {
	_, existed := h.Registry.Get(q.ListingID)
	s, err := h.Registry.Open(ctx, q.ListingID)
	if err != nil {
		return listingsync.Snapshot{}, err
	}
	if q.Refresh && existed {
		return s.Refresh(ctx)
	}
	return s.Snapshot(), nil
}

type ListRequestsQuery struct{}

func (q ListRequestsQuery) Key() string { return listRequestsKey }

type RequestCollection struct {
	Items []requests.Request `json:"items"`
}

type ListRequestsHandler struct {
	Bus *reconciler.Bus
}

func (h *ListRequestsHandler) Handle(ctx context.Context, _ ListRequestsQuery) (RequestCollection, error) {
	return RequestCollection{Items: h.Bus.Collection().Items()}, nil
}

type CreateRequestCommand struct {
	ListingID  requests.ListingID
	Message    string
	MoveInDate *time.Time
}

func (c CreateRequestCommand) Key() string { return createRequestKey }

type CreateRequestHandler struct {
	Registry *listingsync.Registry
	Logger   *slog.Logger
}

func (h *CreateRequestHandler) Handle(ctx context.Context, cmd CreateRequestCommand) (requests.Request, error) {
	message := strings.TrimSpace(cmd.Message)
	if len(message) > maxRequestMessage {
		return requests.Request{}, ErrMessageTooLong
	}
	s, err := h.Registry.Open(ctx, cmd.ListingID)
	if err != nil {
		return requests.Request{}, err
	}
	created, err := s.CreateRequest(ctx, message, cmd.MoveInDate)
	if err != nil {
		return requests.Request{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("request created", "listing_id", cmd.ListingID, "request_id", created.ID)
	}
	return created, nil
}

type CloseListingCommand struct {
	ListingID requests.ListingID
}

func (c CloseListingCommand) Key() string { return closeListingKey }

type CloseListingHandler struct {
	Registry *listingsync.Registry
}

func (h *CloseListingHandler) Handle(_ context.Context, cmd CloseListingCommand) (bool, error) {
	if !h.Registry.Close(cmd.ListingID) {
		return false, ErrSessionMissing
	}
	return true, nil
}

// Register wires every view handler onto the buses.
func Register(cmdBus *commands.InMemoryBus, queryBus *queries.InMemoryBus, registry *listingsync.Registry, bus *reconciler.Bus, logger *slog.Logger) {
	queries.RegisterHandler[ListingSyncQuery, listingsync.Snapshot](queryBus, listingSyncKey, &ListingSyncHandler{Registry: registry})
	queries.RegisterHandler[ListRequestsQuery, RequestCollection](queryBus, listRequestsKey, &ListRequestsHandler{Bus: bus})
	commands.RegisterHandler[CreateRequestCommand, requests.Request](cmdBus, createRequestKey, &CreateRequestHandler{Registry: registry, Logger: logger})
	commands.RegisterHandler[CloseListingCommand, bool](cmdBus, closeListingKey, &CloseListingHandler{Registry: registry})
}
