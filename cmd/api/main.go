package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/escalation-relay/internal/api/http"
	"github.com/spec-kit/escalation-relay/internal/api/http/handlers"
	"github.com/spec-kit/escalation-relay/internal/auth"
	"github.com/spec-kit/escalation-relay/internal/config"
	"github.com/spec-kit/escalation-relay/internal/events"
	"github.com/spec-kit/escalation-relay/internal/faq"
	"github.com/spec-kit/escalation-relay/internal/notify"
	"github.com/spec-kit/escalation-relay/internal/observability"
	"github.com/spec-kit/escalation-relay/internal/persistence"
	"github.com/spec-kit/escalation-relay/internal/relay"
	"github.com/spec-kit/escalation-relay/internal/repository"
	"github.com/spec-kit/escalation-relay/internal/service"
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	interactionRepo := repository.NewInteractionRepository(pool)

	bus := relay.NewBus(messageRepo, cfg.Relay.BufferIdle())
	defer bus.Stop()

	credentials := auth.NewCredentialService(cfg.Auth.JWTSecret, cfg.Auth.CredentialTTLMinutes)

	answerer, err := buildAnswerer(cfg.FAQ, logger)
	if err != nil {
		logger.Fatal("failed to build FAQ answerer", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if redis.Ping(ctx) == nil {
		notifier = notify.NewRedisNotifier(redis.Client, cfg.Notify.OutboxPrefix, logger)
	}

	notificationService := service.NewNotificationService(dispatcher, notifier, logger)
	notificationService.RegisterHandlers()

	escalationService := service.NewEscalationService(service.EscalationDependencies{
		UserRepo:        userRepo,
		TicketRepo:      ticketRepo,
		MessageRepo:     messageRepo,
		InteractionRepo: interactionRepo,
		Bus:             bus,
		Credentials:     credentials,
		Answerer:        answerer,
		Dispatcher:      dispatcher,
		Logger:          logger,
	})

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics)
	relayHandler := handlers.NewRelayHandler(escalationService, bus, credentials, cfg.Relay, metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: healthHandler,
		Relay:  relayHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func buildAnswerer(cfg config.FAQConfig, logger *zap.Logger) (faq.Answerer, error) {
	markdown, err := faq.NewMarkdownAnswerer(cfg.AnswersFile)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == "openai" {
		answerer, err := faq.NewOpenAIAnswerer(cfg.OpenAIAPIKey, cfg.OpenAIModel, markdown.Answers())
		if err != nil {
			logger.Warn("openai answerer unavailable, falling back to markdown", zap.Error(err))
			return markdown, nil
		}
		return answerer, nil
	}
	return markdown, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
