package listingsync

import (
	"context"
	"sync"

	"rentsync/internal/app/resolver"
	"rentsync/internal/domain/requests"
)

// ResolverFactory builds the resolver owned by one session.
type ResolverFactory func(listingID requests.ListingID) (*resolver.Resolver, error)

// Registry keeps at most one open session per listing for the current user.
type Registry struct {
	deps        Deps
	newResolver ResolverFactory

	mu       sync.Mutex
	sessions map[requests.ListingID]*Session
}

func NewRegistry(deps Deps, newResolver ResolverFactory) *Registry {
	return &Registry{
		deps:        deps,
		newResolver: newResolver,
		sessions:    make(map[requests.ListingID]*Session),
	}
}

// Open returns the listing's session, creating and starting it on first use.
// An existing session is returned as-is; callers refresh explicitly.
func (r *Registry) Open(ctx context.Context, listingID requests.ListingID) (*Session, error) {
	if listingID == "" {
		return nil, ErrListingRequired
	}
	r.mu.Lock()
	if s, ok := r.sessions[listingID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	res, err := r.newResolver(listingID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	s, err := NewSession(listingID, res, r.deps)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[listingID] = s
	r.mu.Unlock()

	if _, err := s.Start(ctx); err != nil {
		r.Close(listingID)
		return nil, err
	}
	return s, nil
}

func (r *Registry) Get(listingID requests.ListingID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[listingID]
	return s, ok
}

// Close tears down the listing's session. It reports whether one was open.
func (r *Registry) Close(listingID requests.ListingID) bool {
	r.mu.Lock()
	s, ok := r.sessions[listingID]
	delete(r.sessions, listingID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	if r.deps.Store != nil {
		r.deps.Store.Forget(listingID)
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[requests.ListingID]*Session)
	r.mu.Unlock()
	for id, s := range all {
		s.Close()
		if r.deps.Store != nil {
			r.deps.Store.Forget(id)
		}
	}
}
