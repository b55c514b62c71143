package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/ticket-relay/internal/api/http"
	"github.com/spec-kit/ticket-relay/internal/api/http/handlers"
	"github.com/spec-kit/ticket-relay/internal/auth"
	"github.com/spec-kit/ticket-relay/internal/bot"
	"github.com/spec-kit/ticket-relay/internal/config"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/listener"
	"github.com/spec-kit/ticket-relay/internal/locker"
	"github.com/spec-kit/ticket-relay/internal/observability"
	"github.com/spec-kit/ticket-relay/internal/persistence"
	"github.com/spec-kit/ticket-relay/internal/repository"
	"github.com/spec-kit/ticket-relay/internal/service"
	"github.com/spec-kit/ticket-relay/internal/worker"
)

const postCacheLimit = 10000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		tickets       repository.TicketRepository
		conversations repository.ConversationRepository
	)
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		tickets = repository.NewTicketRepository(pg.PoolHandle())
		conversations = repository.NewConversationRepository(pg.PoolHandle())
	default:
		tickets = repository.NewFileTicketRepository(cfg.Storage.TrackingFile, logger)
		conversations = repository.NewFileConversationRepository(cfg.Storage.ConversationsFile, logger)
	}
	logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	var userLocks locker.Locker = locker.NewKeyedMutex()
	if cfg.Relay.LockBackend == config.LockRedis {
		userLocks = locker.NewRedisLocker(redis.Client, cfg.Relay.LockTTL(), logger)
	}

	var posts gateway.PostCache = gateway.NewMemoryPostCache(postCacheLimit)
	if redis.Enabled() {
		posts = gateway.NewRedisPostCache(redis.Client, cfg.Redis.PostCacheTTL())
	}

	telegram, err := gateway.NewTelegram(cfg.Telegram, posts, logger)
	if err != nil {
		logger.Fatal("failed to start telegram gateway", zap.Error(err))
	}

	clock := format.NewClock(cfg.Relay.TimezoneOffsetHours)
	chats := service.Chats{
		SupportChannelID:  cfg.Telegram.SupportChannelID,
		DiscussionGroupID: cfg.Telegram.DiscussionGroupID,
	}
	dispatcher := events.NewInMemoryDispatcher()
	deps := service.Dependencies{
		Tickets:       tickets,
		Conversations: conversations,
		Gateway:       telegram,
		Locker:        userLocks,
		Dispatcher:    dispatcher,
		Chats:         chats,
		Clock:         clock,
		Metrics:       metrics,
		Logger:        logger,
	}
	ticketService := service.NewTicketService(deps)
	relayService := service.NewRelayService(deps)
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Gateway:    telegram,
		StaffIDs:   cfg.Telegram.StaffIDs,
		Clock:      clock,
		Metrics:    metrics,
		Logger:     logger,
	})

	var (
		subscribers []worker.Subscriber
		history     *service.HistoryRecorder
	)
	if cfg.Storage.Backend == config.StoragePostgres {
		history = service.NewHistoryRecorder(repository.NewTicketHistoryRepository(pg.PoolHandle()), logger)
		subscribers = append(subscribers, history)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer sink.Close() //nolint:errcheck
		subscribers = append(subscribers, sink)
	}
	worker.StartNotificationWorker(dispatcher, notificationService, logger, subscribers...)

	relayBot := bot.New(bot.Options{
		Messenger:          telegram,
		Tickets:            ticketService,
		Relay:              relayService,
		Listeners:          listener.NewRegistry(),
		Chats:              chats,
		DescriptionTimeout: cfg.Relay.DescriptionTimeout(),
		MaxConcurrent:      int64(cfg.Relay.MaxConcurrentUpdates),
		Clock:              clock,
		Logger:             logger,
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	routes := httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Metrics: metrics.Handler(),
	}
	if cfg.Auth.JWTSecret != "" {
		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		routes.Tickets = handlers.NewTicketsHandler(ticketService)
		if history != nil {
			routes.History = handlers.NewHistoryHandler(history)
		}
		routes.AuthMiddleware = auth.NewAuthMiddleware(tokens, auth.NewRoster(cfg.Telegram.StaffIDs))
	} else {
		logger.Info("AUTH_JWT_SECRET not provided; admin API disabled")
	}
	httptransport.RegisterRoutes(app, routes)

	logger.Info("relay starting",
		zap.String("bot", telegram.Username()),
		zap.String("addr", cfg.App.Addr()),
		zap.Int("staff", len(cfg.Telegram.StaffIDs)))

	eg, runCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		relayBot.Run(runCtx, telegram.Updates(runCtx))
		return nil
	})
	eg.Go(func() error {
		return app.Listen(cfg.App.Addr())
	})
	eg.Go(func() error {
		<-runCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := eg.Wait(); err != nil {
		logger.Error("relay stopped with error", zap.Error(err))
	}
}
