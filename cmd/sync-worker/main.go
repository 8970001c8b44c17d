package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/holopos/internal/backend"
	"github.com/angelmondragon/holopos/internal/connectivity"
	"github.com/angelmondragon/holopos/internal/offline"
	"github.com/angelmondragon/holopos/internal/reconcile"
	"github.com/angelmondragon/holopos/internal/snapshot"
	"github.com/angelmondragon/holopos/pkg/clock"
	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/db"
	"github.com/angelmondragon/holopos/pkg/env"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/angelmondragon/holopos/pkg/migrate"
	"github.com/angelmondragon/holopos/pkg/redis"
)

func main() {
	terminalID := env.TerminalID()
	logg := logger.New(logger.Options{ServiceName: "sync-worker", TerminalID: terminalID})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		TerminalID:  terminalID,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	// the worker shares the queue with a running terminal, so it needs the
	// redis drain lock to keep the two from submitting the same sale
	if !cfg.Redis.Enabled() {
		logg.Error(context.Background(), "sync worker requires redis for the drain lock", nil)
		os.Exit(1)
	}
	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	backendClient, err := backend.NewClient(cfg.Backend)
	if err != nil {
		logg.Error(context.Background(), "failed to create backend client", err)
		os.Exit(1)
	}

	queueSnapshot, err := snapshot.Open(cfg.Offline.Backend, dbClient, redisClient, cfg.Offline.StorageKey)
	if err != nil {
		logg.Error(context.Background(), "failed to open offline queue snapshot", err)
		os.Exit(1)
	}
	queue, err := offline.NewStore(offline.StoreParams{
		Snapshot: queueSnapshot,
		Clock:    clock.NewRealClock(),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offline store", err)
		os.Exit(1)
	}

	lock, err := reconcile.NewRedisLock(redisClient, redisClient.LockKey("drain:"+terminalID), cfg.Sync.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create drain lock", err)
		os.Exit(1)
	}

	monitor := connectivity.NewMonitor(connectivity.MonitorParams{
		Logger:        logg,
		Prober:        backendClient,
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
		StartOnline:   cfg.Connectivity.StartOnline,
	})

	reconciler, err := reconcile.NewReconciler(reconcile.Params{
		Queue:         queue,
		Submitter:     backendClient,
		Logger:        logg,
		Lock:          lock,
		SubmitTimeout: cfg.Backend.SubmitTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}
	runner, err := reconcile.NewRunner(reconcile.RunnerParams{
		Reconciler:  reconciler,
		Monitor:     monitor,
		Logger:      logg,
		Interval:    cfg.Sync.Interval,
		BackoffBase: cfg.Sync.BackoffBase,
		BackoffMax:  cfg.Sync.BackoffMax,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync runner", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:  logg,
		Monitor: monitor,
		Runner:  runner,
		Queue:   queue,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "sync-worker",
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}
