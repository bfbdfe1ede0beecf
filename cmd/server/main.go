package main

import (
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/projection"
	"chat-relay/pubsub"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"chat-relay/ws"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting. The pattern keeps defers (database cleanup)
// running before exit and decouples initialization from the entry point.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Delivery core
	metrics := observability.NewMetrics()
	routerQueue := make(chan event.DomainEvent, config.RouterQueueSize)
	sinkEvents := make(chan event.DomainEvent, config.EventQueueSize)

	messageRepository := repositories.NewMessageRepository(db, log)
	chatRepository := repositories.NewChatRepository(db)
	userRepository := repositories.NewUserRepository(db)

	registry := runtime.NewRegistry(log, sinkEvents)
	membership := runtime.NewMembership(chatRepository)
	messageLog := runtime.NewMessageLog(log, messageRepository, membership, routerQueue)
	router := runtime.NewDeliveryRouter(log, membership, registry, routerQueue, sinkEvents, metrics)
	lifecycle := runtime.NewLifecycle(log, registry, membership, messageLog, metrics)

	// 5. Sinks & supervised workers
	timeline := projection.NewTimeline(config.TimelineDepth)
	fanout := workers.NewEventFanout(log, sinkEvents, config.SinkTimeout).Add(timeline)

	if config.AmqpURL != "" {
		publisher, err := pubsub.New(ctx, pubsub.ConnectionOptions{
			URL:           config.AmqpURL,
			Exchange:      config.AmqpExchange,
			RetryAttempts: config.AmqpRetryAttempts,
			Delay:         config.AmqpRetryDelay,
		}, log)
		if err != nil {
			return fmt.Errorf("broker connection failed: %w", err)
		}
		defer publisher.Close()
		fanout.Add(sink.NewEventPublisher(publisher, log))
	}

	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	supervisor.Add(router, fanout, observability.NewReporter(log, metrics, config.MetricInterval))
	go supervisor.Run(ctx)

	// 6. Moderation (optional)
	var moderator *moderation.Moderator
	if config.CensoredWordsPath != "" {
		words, err := moderation.LoadWordList(config.CensoredWordsPath)
		if err != nil {
			return fmt.Errorf("word list loading failed: %w", err)
		}
		replacement, err := moderation.Rune(config.CensoredChar)
		if err != nil {
			return err
		}
		moderator, err = moderation.NewModerator(words, replacement)
		if err != nil {
			return fmt.Errorf("moderator build failed: %w", err)
		}
		log.Info(fmt.Sprintf("%d censored words loaded", len(words)))
	}

	// 7. Services & HTTP surface
	tokens := auth.NewTokenManager(config.AuthSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokens)
	chatService := services.NewChatService(
		chatRepository, messageRepository, membership, messageLog, moderator)

	wsHandler := ws.NewHandler(log, tokens, lifecycle, chatService, config.SessionBufferSize)
	server := api.NewServer(log, authService, chatService, userRepository,
		registry, tokens, config.HistoryPageSize, config.MaxContentLength)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, func() map[string]any {
			stats := metrics.Snapshot()
			stats["live_sessions"] = registry.CountSessions()
			return stats
		}, timeline, log)
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: server.Routes(wsHandler),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	supervisor.Stop()
	log.Info("Program stopped cleanly")
	return nil
}
