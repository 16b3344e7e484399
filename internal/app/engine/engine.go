// Package engine assembles the synchronization core for one user: status
// store, push reconciler, command and query buses, and the per-listing
// session registry.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/handlers/actions"
	"rentsync/internal/app/handlers/views"
	"rentsync/internal/app/listingsync"
	"rentsync/internal/app/middleware"
	"rentsync/internal/app/policies"
	"rentsync/internal/app/queries"
	"rentsync/internal/app/reconciler"
	"rentsync/internal/app/reqstatus"
	"rentsync/internal/app/resolver"
	"rentsync/internal/clock"
	"rentsync/internal/domain/requests"
)

type Options struct {
	UserID        requests.UserID
	Requests      policies.RequestsPort
	Conversations policies.ConversationsPort
	Push          policies.PushChannel
	Cache         resolver.CacheStore
	Clock         clock.Clock
	Resolver      resolver.Config
	Debounce      time.Duration
	Logger        *slog.Logger
}

type Engine struct {
	Commands commands.Bus
	Queries  queries.Bus
	Actions  actions.Dispatcher
	Registry *listingsync.Registry
	Bus      *reconciler.Bus
	Store    *reqstatus.Store

	logger *slog.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.UserID == "" {
		return nil, errors.New("engine: user id required")
	}
	if opts.Requests == nil || opts.Conversations == nil {
		return nil, errors.New("engine: backend ports required")
	}
	if opts.Cache == nil {
		return nil, resolver.ErrCacheRequired
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	store := reqstatus.NewStore(opts.Requests, opts.UserID, opts.Logger)
	bus := reconciler.NewBus(opts.Push, nil, opts.Requests, opts.Logger)

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	chainedCommands := middleware.ChainCommands(
		commandBus,
		middleware.Logging(opts.Logger),
		middleware.SingleFlight(),
	)
	chainedQueries := middleware.ChainQueries(queryBus, middleware.QueryLogging(opts.Logger))
	dispatcher := actions.Dispatcher{Bus: chainedCommands}

	actions.Register(commandBus, &actions.StatusChangeHandler{
		API:    opts.Requests,
		Merger: bus,
		Now:    clk.Now,
		Logger: opts.Logger,
	})

	registry := listingsync.NewRegistry(listingsync.Deps{
		Store:    store,
		Bus:      bus,
		Actions:  dispatcher,
		Clock:    clk,
		Debounce: opts.Debounce,
		Logger:   opts.Logger,
	}, func(requests.ListingID) (*resolver.Resolver, error) {
		return resolver.New(opts.Conversations, opts.Cache, clk, opts.Resolver, opts.Logger)
	})
	views.Register(commandBus, queryBus, registry, bus, opts.Logger)

	return &Engine{
		Commands: chainedCommands,
		Queries:  chainedQueries,
		Actions:  dispatcher,
		Registry: registry,
		Bus:      bus,
		Store:    store,
		logger:   opts.Logger,
	}, nil
}

// Start attaches to the push channel and loads the full request list. A
// failed initial load is logged; pushed events still apply.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Bus.Attach(); err != nil && !errors.Is(err, reconciler.ErrChannelRequired) {
		return err
	}
	if err := e.Bus.Reconcile(ctx); err != nil && e.logger != nil {
		e.logger.Warn("initial request list load failed", "error", err)
	}
	return nil
}

// Close ends every listing session and detaches from the push channel.
func (e *Engine) Close() {
	e.Registry.CloseAll()
	e.Bus.Detach()
}
