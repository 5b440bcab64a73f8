package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cylinderhub/cylinderhub/internal/app"
	"github.com/cylinderhub/cylinderhub/internal/auth"
	"github.com/cylinderhub/cylinderhub/internal/guard"
	"github.com/cylinderhub/cylinderhub/internal/identity"
	"github.com/cylinderhub/cylinderhub/internal/observability"
	"github.com/cylinderhub/cylinderhub/internal/platform/cache"
	"github.com/cylinderhub/cylinderhub/internal/platform/db"
	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
	"github.com/cylinderhub/cylinderhub/internal/session"
	"github.com/cylinderhub/cylinderhub/internal/subadmins"
	"github.com/cylinderhub/cylinderhub/internal/users"
	"github.com/cylinderhub/cylinderhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := kv.NewRedis(redisClient, cfg.KVPrefix)

	usersRepo := users.NewRepository(dbpool)
	publisher := users.NewPublisher(redisClient)
	usersService := users.NewService(usersRepo, publisher, logger)
	watcher := users.NewWatcher(redisClient, usersRepo, logger)

	subadminsRepo := subadmins.NewRepository(dbpool)
	subadminsService := subadmins.NewService(subadminsRepo, usersService, publisher, logger)

	provider := identity.NewLocal(store, cfg.DeviceID, logger)
	sessions := session.NewContext(session.Deps{
		Store:       session.NewStore(store, cfg.DeviceID, session.WithStoreLogger(logger)),
		Synthesizer: session.NewSynthesizer(usersService, subadminsService, cfg.SessionTTL, logger),
		Watcher:     watcher,
		Provider:    provider,
		Observer:    metrics,
		Logger:      logger,
	})
	// Start blocks only for the initial resolution; requests arriving
	// meanwhile wait in the guard.
	go sessions.Start(ctx)
	defer sessions.Close()

	gate := guard.Middleware{
		Sessions: sessions,
		Logger:   logger,
		Observer: metrics,
		Wait:     cfg.SessionGuardWait,
	}

	authService := auth.NewService(usersService, subadminsService, cfg.SessionTTL)
	authHandler := auth.NewHandler(logger, authService, sessions, provider)

	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(queueOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	if _, err := jobClient.EnqueueSessionSweep(ctx, jobs.SessionSweepPayload{}); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Warn("enqueue boot sweep", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	redisPing := func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}
	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		GuardHandler:     guard.NewHandler(gate),
		UsersHandler:     users.NewHandler(logger, usersService, gate),
		SubAdminsHandler: subadmins.NewHandler(logger, subadminsService, gate),
		JobHandler:       jobs.NewHandler(inspector, jobClient, gate, logger),
		Metrics:          metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis":    redisPing,
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting console api", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
