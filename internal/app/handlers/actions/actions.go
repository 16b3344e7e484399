package actions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/policies"
	"rentsync/internal/domain/requests"
)

const (
	approveRequestKey = "requests.approve"
	rejectRequestKey  = "requests.reject"
)

var ErrRequestIDRequired = errors.New("actions: request id is required")

// Merger receives the server's canonical request after a successful
// mutation. reconciler.Bus implements it.
type Merger interface {
	Apply(ctx context.Context, ev requests.RealtimeEvent)
}

type ApproveRequestCommand struct {
	RequestID requests.RequestID
}

func (c ApproveRequestCommand) Key() string         { return approveRequestKey }
func (c ApproveRequestCommand) InFlightKey() string { return string(c.RequestID) }

type RejectRequestCommand struct {
	RequestID requests.RequestID
}

func (c RejectRequestCommand) Key() string         { return rejectRequestKey }
func (c RejectRequestCommand) InFlightKey() string { return string(c.RequestID) }

// StatusChangeHandler sends the lister's decision to the backend. Nothing is
// changed locally before the backend confirms; on failure the backend's
// error is returned untouched.
type StatusChangeHandler struct {
	API    policies.RequestsPort
	Merger Merger
	Now    func() time.Time
	Logger *slog.Logger
}

func (h *StatusChangeHandler) change(ctx context.Context, id requests.RequestID, to requests.Status) (requests.Request, error) {
	id = requests.RequestID(strings.TrimSpace(string(id)))
	if id == "" {
		return requests.Request{}, ErrRequestIDRequired
	}
	updated, err := h.API.UpdateRequestStatus(ctx, id, to)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("request status change rejected by backend", "request_id", id, "status", to, "error", err)
		}
		return requests.Request{}, err
	}
	if h.Merger != nil {
		h.Merger.Apply(ctx, requests.RequestUpdatedEvent(updated, h.now()))
	}
	if h.Logger != nil {
		h.Logger.Info("request status changed", "request_id", updated.ID, "status", updated.Status)
	}
	return updated, nil
}

func (h *StatusChangeHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

type ApproveRequestHandler struct{ *StatusChangeHandler }

func (h ApproveRequestHandler) Handle(ctx context.Context, cmd ApproveRequestCommand) (requests.Request, error) {
	return h.change(ctx, cmd.RequestID, requests.StatusApproved)
}

type RejectRequestHandler struct{ *StatusChangeHandler }

func (h RejectRequestHandler) Handle(ctx context.Context, cmd RejectRequestCommand) (requests.Request, error) {
	return h.change(ctx, cmd.RequestID, requests.StatusRejected)
}

// Register wires both handlers onto bus.
func Register(bus *commands.InMemoryBus, h *StatusChangeHandler) {
	commands.RegisterHandler[ApproveRequestCommand, requests.Request](bus, approveRequestKey, ApproveRequestHandler{h})
	commands.RegisterHandler[RejectRequestCommand, requests.Request](bus, rejectRequestKey, RejectRequestHandler{h})
}

// Dispatcher is the typed front of the approve/reject commands.
type Dispatcher struct {
	Bus commands.Bus
}

func (d Dispatcher) Approve(ctx context.Context, id requests.RequestID) (requests.Request, error) {
	return commands.Dispatch[ApproveRequestCommand, requests.Request](ctx, d.Bus, ApproveRequestCommand{RequestID: id})
}

func (d Dispatcher) Reject(ctx context.Context, id requests.RequestID) (requests.Request, error) {
	return commands.Dispatch[RejectRequestCommand, requests.Request](ctx, d.Bus, RejectRequestCommand{RequestID: id})
}
