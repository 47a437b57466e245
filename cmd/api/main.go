package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/memefactory/backend/internal/auth"
	"github.com/memefactory/backend/internal/autotask"
	"github.com/memefactory/backend/internal/completion"
	"github.com/memefactory/backend/internal/config"
	"github.com/memefactory/backend/internal/events"
	"github.com/memefactory/backend/internal/handlers"
	"github.com/memefactory/backend/internal/ledger"
	"github.com/memefactory/backend/internal/middleware"
	"github.com/memefactory/backend/internal/notify"
	"github.com/memefactory/backend/internal/progress"
	"github.com/memefactory/backend/internal/projects"
	"github.com/memefactory/backend/internal/repository"
	"github.com/memefactory/backend/internal/router"
	"github.com/memefactory/backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := store.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Notification outbox: insert func is set after the River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn notify.InsertTxFunc
	insertNotification := func(ctx context.Context, tx pgx.Tx, args notify.EventNotificationArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("notification queue not wired")
		}
		return fn(ctx, tx, args)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewWorker(cfg.Notify.WebhookURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Notify.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notify.EventNotificationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Core services
	db := store.New(pool, cfg.Database.TxIsolation)
	repo := repository.New(pool)
	ledgerSvc := ledger.NewService(repo)
	eventLog := events.NewLog(repo, events.MustValidator(), notify.Hook(insertNotification))

	progressSvc := progress.NewService(db, repo, eventLog, logger)
	h := &handlers.Handler{
		Progress:   progressSvc,
		Completion: completion.NewService(db, repo, ledgerSvc, eventLog, progressSvc, logger),
		Projects:   projects.NewService(db, repo),
		AutoTasks:  autotask.NewService(db, repo, ledgerSvc, cfg.Rewards.ReferralRate, cfg.Rewards.Location, logger),
		Accounts:   repo,
		Logger:     logger,
	}

	authSvc := auth.NewService(repo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authHandler := auth.NewHandler(authSvc, logger)

	api := router.New(authHandler, h, middleware.BearerAuth(authSvc))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	// Start River client (delivers event notifications)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Server.Port

	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
