package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/campuskit/userservice/internal/activity"
	"github.com/campuskit/userservice/internal/app"
	"github.com/campuskit/userservice/internal/auth"
	"github.com/campuskit/userservice/internal/authz"
	"github.com/campuskit/userservice/internal/observability"
	"github.com/campuskit/userservice/internal/platform/cache"
	"github.com/campuskit/userservice/internal/platform/db"
	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/users"
	"github.com/campuskit/userservice/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)

	guardian := users.NewGuardian(usersRepo,
		users.AdminPasswordSource{Configured: cfg.AdminPassword}, logger)
	if err := guardian.Ensure(ctx); err != nil {
		logger.Error("ensure root admin", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Algorithm:  cfg.JWTAlgorithm,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}
	opaqueStore := auth.NewOpaqueStore(redisClient)
	resolver := auth.NewResolver(tokenManager, opaqueStore, usersRepo)

	engine, err := authz.NewEngine(authz.DefaultConfig())
	if err != nil {
		logger.Error("init authorization engine", slog.Any("error", err))
		os.Exit(1)
	}
	authzMiddleware := &authz.Middleware{Resolver: resolver, Engine: engine, Logger: logger}
	rbacMiddleware := rbac.Middleware{Logger: logger}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	activityRepo := activity.NewRepository(pool)
	recorder := activity.NewRecorder(queueClient, activityRepo, logger)
	activityService := activity.NewService(activityRepo)
	activityHandler := activity.NewHandler(logger, activityService)

	authService := auth.NewService(usersService, tokenManager, opaqueStore, usersRepo)
	authHandler := auth.NewHandler(logger, authService, usersService, recorder)
	usersHandler := users.NewHandler(logger, usersService, recorder, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Authz:           authzMiddleware,
		AuthHandler:     authHandler,
		UsersHandler:    usersHandler,
		ActivityHandler: activityHandler,
		JobsHandler:     jobsHandler,
		Pool:            pool,
		Redis:           redisClient,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
