package reqstatus

import (
	"context"
	"log/slog"
	"sync"

	"rentsync/internal/app/policies"
	"rentsync/internal/domain/requests"
)

// Store keeps the viewing user's request status per listing. It merges three
// sources: on-demand fetches, optimistic creates and pushed events.
type Store struct {
	api    policies.RequestsPort
	userID requests.UserID
	logger *slog.Logger

	mu    sync.RWMutex
	views map[requests.ListingID]requests.StatusView
	// ids that were shown once and then replaced by a newer request
	retired map[requests.RequestID]struct{}
}

func NewStore(api policies.RequestsPort, userID requests.UserID, logger *slog.Logger) *Store {
	return &Store{
		api:     api,
		userID:  userID,
		logger:  logger,
		views:   make(map[requests.ListingID]requests.StatusView),
		retired: make(map[requests.RequestID]struct{}),
	}
}

// View returns the current projection, ViewNone if nothing is known.
func (s *Store) View(listingID requests.ListingID) requests.StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.views[listingID]; ok {
		return v
	}
	return requests.NoneView()
}

// Refresh fetches the authoritative status. A failed fetch is reported as
// ViewNone, the same as a listing without a request.
func (s *Store) Refresh(ctx context.Context, listingID requests.ListingID) requests.StatusView {
	view := requests.NoneView()
	snap, err := s.api.StatusByListing(ctx, listingID)
	switch {
	case err != nil:
		if s.logger != nil {
			s.logger.Warn("request status fetch failed", "listing_id", listingID, "error", err)
		}
	case snap != nil && snap.Status.Valid():
		view = requests.StatusView{Status: requests.ViewStatus(snap.Status), RequestID: snap.RequestID}
	case snap != nil:
		if s.logger != nil {
			s.logger.Warn("request status unrecognized", "listing_id", listingID, "status", snap.Status)
		}
	}
	s.set(listingID, view)
	return view
}

// Create shows the listing as pending right away, then swaps in the server's
// request. When the backend refuses, the previous view comes back.
func (s *Store) Create(ctx context.Context, input requests.CreateInput) (requests.Request, error) {
	s.mu.Lock()
	prev, had := s.views[input.ListingID]
	s.views[input.ListingID] = requests.StatusView{Status: requests.ViewPending}
	s.mu.Unlock()

	created, err := s.api.CreateRequest(ctx, input)
	if err != nil {
		s.mu.Lock()
		if had {
			s.views[input.ListingID] = prev
		} else {
			delete(s.views, input.ListingID)
		}
		s.mu.Unlock()
		return requests.Request{}, err
	}
	listingID := created.ListingID
	if listingID == "" {
		listingID = input.ListingID
	}
	next := requests.ViewOf(created)
	s.mu.Lock()
	s.retire(prev, next)
	s.views[listingID] = next
	s.mu.Unlock()
	return created, nil
}

// Apply merges a pushed request of the viewing user. A new request replaces
// whatever the listing showed; an update only touches the request the view
// already points at, so late updates for an older request are ignored.
func (s *Store) Apply(ev requests.RealtimeEvent) (requests.StatusView, bool) {
	r := ev.Request
	if r.RequesterID != s.userID || r.ListingID == "" || !r.Status.Valid() {
		return requests.StatusView{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.views[r.ListingID]
	if _, old := s.retired[r.ID]; old {
		return cur, false
	}
	accept := !ok || cur.IsNone() || cur.RequestID == r.ID
	if !accept && ev.Kind == requests.KindNewRequest {
		accept = true
	}
	if !accept {
		return cur, false
	}
	next := requests.ViewOf(r)
	s.retire(cur, next)
	s.views[r.ListingID] = next
	return next, next != cur
}

// Forget drops the cached view for a listing.
func (s *Store) Forget(listingID requests.ListingID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, listingID)
}

func (s *Store) set(listingID requests.ListingID, view requests.StatusView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retire(s.views[listingID], view)
	s.views[listingID] = view
}

// retire must be called with mu held.
func (s *Store) retire(cur, next requests.StatusView) {
	if cur.RequestID != "" && next.RequestID != "" && cur.RequestID != next.RequestID {
		s.retired[cur.RequestID] = struct{}{}
	}
}
