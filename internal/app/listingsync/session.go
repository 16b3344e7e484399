// Package listingsync joins the status store, the conversation resolver and
// the push reconciler into one per-listing session with a narrow contract:
// a snapshot of {status, conversation id, resolving flag} plus refresh,
// create, approve and reject.
package listingsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rentsync/internal/app/debounce"
	"rentsync/internal/app/reconciler"
	"rentsync/internal/app/reqstatus"
	"rentsync/internal/app/resolver"
	"rentsync/internal/clock"
	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
)

var (
	ErrSessionClosed    = errors.New("listingsync: session closed")
	ErrListingRequired  = errors.New("listingsync: listing id is required")
	ErrActionsRequired  = errors.New("listingsync: approve/reject not configured")
	ErrResolverRequired = errors.New("listingsync: resolver required")
)

// Snapshot is what a hosting view renders. ConversationID is only set while
// Status is approved; a resolved id survives a detour through another status
// inside the session and shows again once the view is approved.
type Snapshot struct {
	ListingID      requests.ListingID           `json:"listing_id"`
	Status         requests.ViewStatus          `json:"status"`
	RequestID      requests.RequestID           `json:"request_id,omitempty"`
	ConversationID conversations.ConversationID `json:"conversation_id,omitempty"`
	IsResolving    bool                         `json:"is_resolving"`
	RateLimited    bool                         `json:"rate_limited,omitempty"`
	RetryAt        *time.Time                   `json:"retry_at,omitempty"`
}

// Actions performs lister decisions. actions.Dispatcher implements it.
type Actions interface {
	Approve(ctx context.Context, id requests.RequestID) (requests.Request, error)
	Reject(ctx context.Context, id requests.RequestID) (requests.Request, error)
}

// Deps are the shared collaborators of every session of one user.
type Deps struct {
	Store    *reqstatus.Store
	Bus      *reconciler.Bus
	Actions  Actions
	Clock    clock.Clock
	Debounce time.Duration
	Logger   *slog.Logger
}

// Session synchronizes one listing. The resolver and the debouncer are
// owned by the session so listings never share timers or backoff.
type Session struct {
	listingID requests.ListingID
	deps      Deps
	resolver  *resolver.Resolver
	debouncer *debounce.Debouncer
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	snap        Snapshot
	gen         uint64
	closed      bool
	started     bool
	retry       *clock.Timer
	unsubscribe func()
	listeners   map[int]func(Snapshot)
	nextID      int
}

func NewSession(listingID requests.ListingID, res *resolver.Resolver, deps Deps) (*Session, error) {
	if listingID == "" {
		return nil, ErrListingRequired
	}
	if res == nil {
		return nil, ErrResolverRequired
	}
	if deps.Store == nil {
		return nil, errors.New("listingsync: status store required")
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger != nil {
		logger = logger.With("listing_id", listingID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		listingID: listingID,
		deps:      deps,
		resolver:  res,
		debouncer: debounce.New(clk, deps.Debounce),
		clock:     clk,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		snap:      Snapshot{ListingID: listingID, Status: requests.ViewNone},
		listeners: make(map[int]func(Snapshot)),
	}, nil
}

func (s *Session) ListingID() requests.ListingID { return s.listingID }

// Start subscribes to pushed events and performs the first refresh.
// Calling it again only refreshes.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	first := !s.started
	s.started = true
	s.mu.Unlock()

	if first && s.deps.Bus != nil {
		unsub := s.deps.Bus.Subscribe(s.onEvent)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsub()
			return Snapshot{}, ErrSessionClosed
		}
		s.unsubscribe = unsub
		s.mu.Unlock()
	}
	return s.Refresh(ctx)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySnap()
}

// Refresh fetches the authoritative status. An approved, unresolved listing
// is always queued for resolution, even when the status did not change.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	if s.isClosed() {
		return Snapshot{}, ErrSessionClosed
	}
	view := s.deps.Store.Refresh(ctx, s.listingID)
	s.applyView(view, true)
	return s.Snapshot(), nil
}

// CreateRequest submits a new request for the listing. The snapshot turns
// pending before the backend answers and rolls back if it refuses.
func (s *Session) CreateRequest(ctx context.Context, message string, moveIn *time.Time) (requests.Request, error) {
	if s.isClosed() {
		return requests.Request{}, ErrSessionClosed
	}
	s.applyView(requests.StatusView{Status: requests.ViewPending}, false)
	created, err := s.deps.Store.Create(ctx, requests.CreateInput{
		ListingID:  s.listingID,
		Message:    message,
		MoveInDate: moveIn,
	})
	s.applyView(s.deps.Store.View(s.listingID), false)
	if err != nil {
		return requests.Request{}, err
	}
	if s.deps.Bus != nil {
		s.deps.Bus.Apply(ctx, requests.NewRequestEvent(created, s.clock.Now()))
	}
	return created, nil
}

func (s *Session) Approve(ctx context.Context, id requests.RequestID) (requests.Request, error) {
	if s.deps.Actions == nil {
		return requests.Request{}, ErrActionsRequired
	}
	if s.isClosed() {
		return requests.Request{}, ErrSessionClosed
	}
	return s.deps.Actions.Approve(ctx, id)
}

func (s *Session) Reject(ctx context.Context, id requests.RequestID) (requests.Request, error) {
	if s.deps.Actions == nil {
		return requests.Request{}, ErrActionsRequired
	}
	if s.isClosed() {
		return requests.Request{}, ErrSessionClosed
	}
	return s.deps.Actions.Reject(ctx, id)
}

// OnChange registers a listener called after every snapshot change, outside
// the session lock. The returned func removes it.
func (s *Session) OnChange(fn func(Snapshot)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close tears the session down. Pending timers are cancelled and resolver
// answers that arrive afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.retry.Stop()
	s.retry = nil
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.listeners = map[int]func(Snapshot){}
	s.mu.Unlock()

	s.debouncer.Stop()
	s.cancel()
	if unsub != nil {
		unsub()
	}
	if s.logger != nil {
		s.logger.Debug("listing session closed")
	}
}

func (s *Session) onEvent(ctx context.Context, ev requests.RealtimeEvent, _ bool) {
	if ev.Request.ListingID != s.listingID || s.isClosed() {
		return
	}
	view, changed := s.deps.Store.Apply(ev)
	if !changed {
		return
	}
	s.applyView(view, false)
}

// applyView installs a status projection. A status change restarts the
// debounce window; force queues resolution regardless.
func (s *Session) applyView(view requests.StatusView, force bool) {
	if view.Status == "" {
		view = requests.NoneView()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.snap
	s.snap.Status = view.Status
	s.snap.RequestID = view.RequestID
	statusChanged := prev.Status != view.Status || prev.RequestID != view.RequestID
	schedule := statusChanged || (force && view.Approved() && s.snap.ConversationID == "")
	if schedule {
		s.retry.Stop()
		s.retry = nil
	}
	switch {
	case !view.Approved():
		s.snap.IsResolving = false
		s.snap.RateLimited = false
		s.snap.RetryAt = nil
	case s.snap.ConversationID == "":
		s.snap.IsResolving = schedule || s.snap.IsResolving
	}
	changed := !sameSnapshot(prev, s.snap)
	next, listeners := s.copySnap(), s.listenerList()
	s.mu.Unlock()

	if schedule {
		s.debouncer.Trigger(s.resolveNow)
	}
	if changed {
		s.notify(next, listeners)
	}
}

// resolveNow runs after the debounce window using the status current at
// that moment.
func (s *Session) resolveNow() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	status := requests.Status(s.snap.Status)
	ctx := s.ctx
	s.mu.Unlock()

	if status != requests.StatusApproved {
		return
	}
	res, err := s.resolver.Resolve(ctx, s.listingID, status)

	s.mu.Lock()
	if s.closed || gen != s.gen || requests.Status(s.snap.Status) != requests.StatusApproved {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Debug("stale conversation resolution dropped")
		}
		return
	}
	prev := s.snap
	s.snap.IsResolving = false
	s.snap.RateLimited = false
	s.snap.RetryAt = nil
	switch {
	case err != nil:
		s.snap.ConversationID = ""
		if s.logger != nil {
			s.logger.Warn("conversation resolution failed", "error", err)
		}
	case res.Resolved:
		s.snap.ConversationID = res.ConversationID
	default:
		s.snap.RateLimited = res.RateLimited
		if !res.RetryAt.IsZero() {
			at := res.RetryAt
			s.snap.RetryAt = &at
			s.scheduleRetryLocked(at)
		}
	}
	changed := !sameSnapshot(prev, s.snap)
	next, listeners := s.copySnap(), s.listenerList()
	s.mu.Unlock()

	if changed {
		s.notify(next, listeners)
	}
}

// scheduleRetryLocked re-runs resolution when the cached window ends. The
// conversation is created asynchronously by the backend after approval.
func (s *Session) scheduleRetryLocked(at time.Time) {
	s.retry.Stop()
	wait := at.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	gen := s.gen
	s.retry = s.clock.AfterFunc(wait, func() {
		s.mu.Lock()
		if s.closed || gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.retry = nil
		s.snap.IsResolving = true
		next, listeners := s.copySnap(), s.listenerList()
		s.mu.Unlock()
		s.notify(next, listeners)
		s.resolveNow()
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) copySnap() Snapshot {
	out := s.snap
	if out.Status != requests.ViewApproved {
		out.ConversationID = ""
	}
	if s.snap.RetryAt != nil {
		at := *s.snap.RetryAt
		out.RetryAt = &at
	}
	return out
}

func (s *Session) listenerList() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *Session) notify(snap Snapshot, listeners []func(Snapshot)) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func sameSnapshot(a, b Snapshot) bool {
	if (a.RetryAt == nil) != (b.RetryAt == nil) {
		return false
	}
	if a.RetryAt != nil && !a.RetryAt.Equal(*b.RetryAt) {
		return false
	}
	a.RetryAt, b.RetryAt = nil, nil
	return a == b
}
