package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"youapp/internal/auth"
	"youapp/internal/broker"
	"youapp/internal/config"
	"youapp/internal/httpapi"
	"youapp/internal/logging"
	"youapp/internal/messaging"
	"youapp/internal/metrics"
	"youapp/internal/outbox"
	"youapp/internal/presence"
	"youapp/internal/profile"
	"youapp/internal/push"
	"youapp/internal/repository"
	"youapp/internal/ws"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server with the live channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "Listen port, overrides PORT")

	return cmd
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		store, err = repository.OpenPostgres(ctx, cfg.DBConnStr)
	default:
		if mkErr := os.MkdirAll(cfg.BadgerPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create badger dir: %w", mkErr)
		}
		store, err = repository.OpenBadger(cfg.BadgerPath)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// openPublisher returns the outbox publisher and, for the amqp driver, the
// client the push worker consumes from.
func openPublisher(cfg *config.Config, logger *slog.Logger) (broker.Publisher, *broker.RabbitMQClient, error) {
	switch cfg.EventsDriver {
	case config.EventsAMQP:
		client, err := broker.NewRabbitMQClient(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case config.EventsStream:
		publisher, err := broker.NewStreamPublisher(cfg.StreamURL, cfg.StreamName)
		if err != nil {
			return nil, nil, err
		}
		return publisher, nil, nil
	default:
		return broker.NewLogPublisher(logger), nil, nil
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	m := metrics.New()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()
	logger.Info("store ready", "driver", cfg.StoreDriver)

	publisher, amqpClient, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close publisher", "error", err)
		}
	}()

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	registry := presence.NewRegistry[*ws.Client]()
	hub := ws.NewHub(registry, issuer, ws.Options{
		RequireAuth:     cfg.Live.RequireAuth,
		SendBuffer:      cfg.Live.SendBuffer,
		PingInterval:    cfg.Live.PingInterval,
		PongWait:        cfg.Live.PongWait,
		WriteWait:       10 * time.Second,
		MaxMessageBytes: cfg.Live.MaxMessageBytes,
	}, logger, m)

	messages := messaging.NewService(store, store, logger, m)
	profiles := profile.NewService(store, issuer, cfg.UploadDir, cfg.MaxAvatarBytes, logger)

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Auth:       httpapi.NewAuthHandler(profiles, logger),
		Profiles:   httpapi.NewProfileHandler(profiles, cfg.MaxAvatarBytes, logger),
		Messages:   httpapi.NewMessageHandler(messages, logger),
		Live:       hub,
		Metrics:    m.Handler(),
		UploadDir:  cfg.UploadDir,
		Verifier:   issuer,
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{httpapi.CORS, httpapi.RequestLogger(logger, m)},
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var workers sync.WaitGroup

	relay := outbox.NewWorker(store, publisher, cfg.OutboxBatch, logger, m)
	workers.Add(1)
	go func() {
		defer workers.Done()
		relay.Start(workerCtx, cfg.OutboxInterval)
	}()

	if cfg.PushEnabled {
		if amqpClient == nil {
			logger.Warn("push worker needs EVENTS_DRIVER=amqp, not starting", "events_driver", cfg.EventsDriver)
		} else {
			pusher := push.NewWorker(amqpClient, registry, push.LogNotifier{Logger: logger}, logger, m)
			workers.Add(1)
			go func() {
				defer workers.Done()
				if err := pusher.Start(workerCtx); err != nil {
					logger.Error("push worker stopped", "error", err)
				}
			}()
		}
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "events_driver", cfg.EventsDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stopWorkers()
			workers.Wait()
			hub.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	hub.Shutdown()
	stopWorkers()
	workers.Wait()
	logger.Info("server stopped")
	return nil
}
