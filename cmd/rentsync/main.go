package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/spf13/pflag"

	"rentsync/internal/app/engine"
	"rentsync/internal/app/resolver"
	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/api"
	"rentsync/internal/infra/broker/kafka"
	"rentsync/internal/infra/config"
	"rentsync/internal/infra/db/mongo"
	ginserver "rentsync/internal/infra/http/gin"
	"rentsync/internal/infra/inbox"
	"rentsync/internal/infra/obs"
	"rentsync/internal/infra/push"
	"rentsync/internal/infra/push/websocket"
	"rentsync/internal/infra/storage/memory"
	redisstore "rentsync/internal/infra/storage/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, addr string
	flagSet := pflag.NewFlagSet("rentsync", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "dotenv file to preload (default: .env when present)")
	flagSet.StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	logger := obs.NewLogger(cfg.Env).With("user_id", cfg.UserID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.engine.Start(ctx); err != nil {
		return err
	}
	app.startPush(ctx)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: app.readiness}, ginserver.Handlers{
		ListingSync: ginserver.ListingSyncHandler{Commands: app.engine.Commands, Queries: app.engine.Queries},
		Requests:    ginserver.RequestsHandler{Queries: app.engine.Queries, Actions: app.engine.Actions},
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "push_mode", cfg.PushMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

type application struct {
	cfg       config.Config
	logger    *slog.Logger
	engine    *engine.Engine
	backend   *api.Client
	hub       *push.Hub
	mongo     *mongo.Client
	closers   []func()
	readiness []func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}
	app.backend = api.New(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, logger)
	app.hub = push.NewHub(logger)

	var cache resolver.CacheStore = memory.NewLookupCache()
	if cfg.RedisAddr != "" {
		client, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		cache = redisstore.NewLookupCache(client, "rentsync:lookup:"+cfg.UserID+":", 0)
		app.readiness = append(app.readiness, func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx).Err()
		})
		logger.Info("lookup cache backed by redis", "addr", cfg.RedisAddr)
	}

	if cfg.MongoURI != "" {
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			app.close()
			return nil, err
		}
		app.mongo = client
		app.closers = append(app.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		})
		app.readiness = append(app.readiness, func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		})
	}

	eng, err := engine.New(engine.Options{
		UserID:        requests.UserID(cfg.UserID),
		Requests:      app.backend,
		Conversations: app.backend,
		Push:          app.hub,
		Cache:         cache,
		Resolver:      resolver.Config{TTL: cfg.LookupTTL, RateLimitBackoff: cfg.RateLimitBackoff},
		Debounce:      cfg.DebounceDelay,
		Logger:        logger,
	})
	if err != nil {
		app.close()
		return nil, err
	}
	app.engine = eng
	app.closers = append(app.closers, eng.Close)
	return app, nil
}

// startPush runs the configured transport in the background.
func (a *application) startPush(ctx context.Context) {
	switch a.cfg.PushMode {
	case config.PushWebsocket:
		client := &websocket.Client{
			URL:       a.cfg.PushURL,
			Token:     a.cfg.BackendToken,
			Reconnect: a.cfg.PushReconnect,
			Publisher: a.hub,
			Logger:    a.logger,
		}
		a.readiness = append(a.readiness, a.pushReady)
		go func() {
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("push client stopped", "error", err)
			}
		}()
	case config.PushKafka:
		if err := a.startKafka(ctx); err != nil {
			a.logger.Error("kafka consumer not started", "error", err)
			return
		}
		a.readiness = append(a.readiness, a.pushReady)
	default:
		a.logger.Warn("push disabled; statuses update on refresh only")
	}
}

func (a *application) startKafka(ctx context.Context) error {
	var box kafka.Inbox = inbox.NewMemory()
	if a.mongo != nil {
		store, err := inbox.NewStore(ctx, a.mongo.DB, a.cfg.KafkaGroupID+"/"+a.cfg.UserID, a.cfg.InboxRetention)
		if err != nil {
			return err
		}
		box = store
	}
	handler := &kafka.EventHandler{Publisher: a.hub, Inbox: box, Logger: a.logger}
	consumer, err := kafka.NewConsumer(a.cfg.KafkaBrokers, a.cfg.KafkaGroupID+"-"+a.cfg.UserID, sarama.NewConfig(), handler, a.hub.SetConnected)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = consumer.Close() })
	go func() {
		if err := consumer.Run(ctx, []string{a.cfg.KafkaTopic}); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("kafka consumer stopped", "error", err)
		}
	}()
	return nil
}

func (a *application) pushReady() error {
	if !a.hub.Connected() {
		return errors.New("push channel not connected")
	}
	return nil
}

// close runs closers in reverse order.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
