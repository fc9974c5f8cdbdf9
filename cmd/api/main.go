package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/cache"
	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/lifecycle"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/sla"
	"github.com/spec-kit/support-desk/internal/worker"
	"github.com/spec-kit/support-desk/migrations"
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

	metrics := observability.NewMetrics()
	clk := clock.Real()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	readiness := map[string]handlers.Pinger{}
	var (
		tickets repository.TicketStore
		history repository.TicketHistoryRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		tickets = repository.NewTicketRepository(pool, clk)
		history = repository.NewTicketHistoryRepository(pool)
		readiness["postgres"] = pg
	} else {
		logger.Warn("using in-memory ticket store; data is lost on restart")
		tickets = repository.NewMemoryTicketStore(clk)
		history = repository.NewMemoryTicketHistoryRepository()
	}

	dispatcher := events.NewInMemoryDispatcher()
	var statsCache *cache.StatsCache
	if redis.Enabled() {
		readiness["redis"] = redis
		dispatcher = events.NewRedisFanout(dispatcher, redis.Client, cfg.Redis.EventsChannel, logger)
		statsCache = cache.NewStatsCache(redis.Client, cfg.SLA.StatsCacheTTL(), metrics, logger)
	}

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	var notificationWorker *worker.NotificationWorker
	if cfg.Notification.Workers > 0 {
		notificationWorker = worker.NewNotificationWorker(notificationService, cfg.Notification.QueueSize, logger)
		notificationWorker.Subscribe(dispatcher)
		notificationWorker.Start(ctx, cfg.Notification.Workers)
	} else {
		notificationService.RegisterHandlers()
	}

	var duePolicy *sla.DuePolicy
	if cfg.SLA.AutoDueDate {
		duePolicy, err = sla.NewDuePolicy(sla.PolicyConfig{
			WorkStart: cfg.SLA.WorkStart(),
			WorkEnd:   cfg.SLA.WorkEnd(),
			Workdays:  cfg.SLA.Workdays,
			Holidays:  cfg.SLA.Holidays,
			Location:  cfg.SLA.Location,
		})
		if err != nil {
			logger.Fatal("invalid business calendar", zap.Error(err))
		}
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketStore: tickets,
		HistoryRepo: history,
		Machine: lifecycle.NewMachine(clk, lifecycle.WithPolicy(lifecycle.Policy{
			AssignPromotesOpen: cfg.Lifecycle.AssignPromotesOpen,
		})),
		DuePolicy:  duePolicy,
		Dispatcher: dispatcher,
		StatsCache: statsCache,
		Metrics:    metrics,
		Clock:      clk,
		Location:   cfg.SLA.Location,
		Logger:     logger,
	})

	slaWorker := worker.NewSLAWorker(worker.SLADependencies{
		Tickets:    tickets,
		Stats:      ticketService,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      clk,
		Logger:     logger,
	})
	statsSchedule := cfg.SLA.StatsRefreshSchedule
	if !statsCache.Enabled() {
		statsSchedule = ""
	}
	if err := slaWorker.Start(ctx, cfg.SLA.SweepSchedule, statsSchedule); err != nil {
		logger.Fatal("failed to start sla worker", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Prefix:         cfg.App.APIPrefix,
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets:        handlers.NewTicketsHandler(ticketService, clk),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	slaWorker.Stop(shutdownCtx)
	if notificationWorker != nil {
		notificationWorker.Stop(shutdownCtx)
	}
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
