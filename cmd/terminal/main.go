package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/holopos/api/controllers"
	"github.com/angelmondragon/holopos/api/routes"
	"github.com/angelmondragon/holopos/internal/backend"
	"github.com/angelmondragon/holopos/internal/catalog"
	checkoutsvc "github.com/angelmondragon/holopos/internal/checkout"
	"github.com/angelmondragon/holopos/internal/connectivity"
	"github.com/angelmondragon/holopos/internal/loyalty"
	"github.com/angelmondragon/holopos/internal/offline"
	"github.com/angelmondragon/holopos/internal/pricing"
	"github.com/angelmondragon/holopos/internal/receipts"
	"github.com/angelmondragon/holopos/internal/reconcile"
	"github.com/angelmondragon/holopos/internal/snapshot"
	"github.com/angelmondragon/holopos/pkg/clock"
	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/db"
	"github.com/angelmondragon/holopos/pkg/env"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/angelmondragon/holopos/pkg/metrics"
	"github.com/angelmondragon/holopos/pkg/migrate"
	"github.com/angelmondragon/holopos/pkg/pubsub"
	"github.com/angelmondragon/holopos/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	terminalID := env.TerminalID()
	logg := logger.New(logger.Options{ServiceName: "terminal", TerminalID: terminalID})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "terminal",
		TerminalID:  terminalID,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	var resources closers
	defer func() {
		if err := resources.closeAll(); err != nil {
			logg.Error(context.Background(), "error releasing resources", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	resources.add("database", dbClient.Close)

	if err := migrate.MaybeRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		resources.add("redis", redisClient.Close)
	}

	var receiptsSource receipts.PubSubSource
	if cfg.Receipts.Driver == config.ReceiptsDriverPubSub {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		resources.add("pubsub", pubsubClient.Close)
		receiptsSource = pubsubClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(registry)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	backendClient, err := backend.NewClient(cfg.Backend)
	if err != nil {
		logg.Error(context.Background(), "failed to create backend client", err)
		os.Exit(1)
	}

	catalogSnapshot, err := snapshot.Open(cfg.Offline.Backend, dbClient, redisClient, cfg.Offline.CatalogKey)
	if err != nil {
		logg.Error(context.Background(), "failed to open catalog snapshot", err)
		os.Exit(1)
	}
	catalogCache, err := catalog.NewCache(backendClient, catalogSnapshot, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog cache", err)
		os.Exit(1)
	}
	if err := catalogCache.Load(context.Background()); err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "catalog snapshot unusable, waiting for refresh")
	}
	if _, err := catalogCache.Refresh(context.Background()); err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "catalog refresh failed at startup, pricing from snapshot")
	}

	queueSnapshot, err := snapshot.Open(cfg.Offline.Backend, dbClient, redisClient, cfg.Offline.StorageKey)
	if err != nil {
		logg.Error(context.Background(), "failed to open offline queue snapshot", err)
		os.Exit(1)
	}
	clk := clock.NewRealClock()
	queue, err := offline.NewStore(offline.StoreParams{
		Snapshot: queueSnapshot,
		Clock:    clk,
		Logger:   logg,
		OnCorruption: func(ctx context.Context, err error) {
			syncMetrics.IncFailed("storage_corruption")
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offline store", err)
		os.Exit(1)
	}

	monitor := connectivity.NewMonitor(connectivity.MonitorParams{
		Logger:        logg,
		Prober:        backendClient,
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
		StartOnline:   cfg.Connectivity.StartOnline,
	})

	var drainLock reconcile.Lock
	if cfg.Sync.DistributedLock && redisClient != nil {
		drainLock, err = reconcile.NewRedisLock(redisClient, redisClient.LockKey("drain:"+terminalID), cfg.Sync.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create drain lock", err)
			os.Exit(1)
		}
	}

	reconciler, err := reconcile.NewReconciler(reconcile.Params{
		Queue:         queue,
		Submitter:     backendClient,
		Logger:        logg,
		Metrics:       syncMetrics,
		Lock:          drainLock,
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

	publisher, closePublisher, err := receipts.FromConfig(cfg, receiptsSource, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipts publisher", err)
		os.Exit(1)
	}
	resources.add("receipts", closePublisher)

	policy, err := loyalty.NewPolicy(cfg.Loyalty.AmountPerPoint)
	if err != nil {
		logg.Error(context.Background(), "invalid loyalty policy", err)
		os.Exit(1)
	}

	pricer := pricing.NewEngine(clk)
	checkoutService, err := checkoutsvc.NewService(checkoutsvc.Params{
		Pricer:        pricer,
		Queue:         queue,
		Submitter:     backendClient,
		Connectivity:  monitor,
		Receipts:      publisher,
		Loyalty:       policy,
		Clock:         clk,
		Logger:        logg,
		Metrics:       checkoutMetrics,
		SubmitTimeout: cfg.Backend.SubmitTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ready := map[string]controllers.Pinger{"database": dbClient}
	if redisClient != nil {
		ready["redis"] = redisClient
	}

	addr := ":" + cfg.App.Port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Catalog:      catalogCache,
			Pricer:       pricer,
			Checkout:     checkoutService,
			Backend:      backendClient,
			Queue:        queue,
			Reconciler:   reconciler,
			Runner:       runner,
			Connectivity: monitor,
			Redis:        redisClient,
			Ready:        ready,
			Registry:     registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logg.Info(ctx, "starting terminal")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error { return monitor.Run(groupCtx) })
	group.Go(func() error {
		if err := runner.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "terminal stopped unexpectedly", err)
		if cerr := resources.closeAll(); cerr != nil {
			logg.Error(ctx, "error releasing resources", cerr)
		}
		os.Exit(1)
	}

	logg.Info(ctx, "terminal shutting down gracefully")
}
