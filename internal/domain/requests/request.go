package requests

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidStatus     = errors.New("requests: invalid status")
	ErrInvalidTransition = errors.New("requests: invalid status transition")
)

type RequestID string

type ListingID string

type UserID string

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus accepts the backend spellings case-insensitively.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", ErrInvalidStatus
}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Terminal statuses never change again for the same request id.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether a request may move from one status to another.
// Re-applying the current status is allowed.
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return from == StatusPending && to.Terminal()
}

// Request is the client-side mirror of a seeker's contact request.
type Request struct {
	ID          RequestID
	ListingID   ListingID
	RequesterID UserID
	ListerID    UserID
	Status      Status
	Message     string
	MoveInDate  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transition moves a pending request to a terminal status.
func (r *Request) Transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return ErrInvalidTransition
	}
	r.Status = to
	r.UpdatedAt = now.UTC()
	return nil
}

// CreateInput is what the requester submits.
type CreateInput struct {
	ListingID  ListingID
	Message    string
	MoveInDate *time.Time
}

func priority(s Status) int {
	if s == StatusPending {
		return 0
	}
	return 1
}

// CompareForDisplay orders pending requests first, then newest first.
func CompareForDisplay(a, b Request) int {
	if c := cmp.Compare(priority(a.Status), priority(b.Status)); c != 0 {
		return c
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}

// SortForDisplay sorts in place. Equal items keep their relative order so
// repeated sorts of an unchanged collection are no-ops.
func SortForDisplay(items []Request) {
	slices.SortStableFunc(items, CompareForDisplay)
}
