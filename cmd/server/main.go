package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/api"
	"github.com/milkbook/ledger/internal/config"
	"github.com/milkbook/ledger/internal/connectivity"
	"github.com/milkbook/ledger/internal/db"
	"github.com/milkbook/ledger/internal/kvstore"
	"github.com/milkbook/ledger/internal/metrics"
	"github.com/milkbook/ledger/internal/optimistic"
	"github.com/milkbook/ledger/internal/queue"
	"github.com/milkbook/ledger/internal/ratelimiter"
	"github.com/milkbook/ledger/internal/remote"
	"github.com/milkbook/ledger/internal/repository"
	"github.com/milkbook/ledger/internal/service"
	"github.com/milkbook/ledger/internal/worker"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- remote datastore ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- durable queue storage ----
	var store kvstore.Store
	switch cfg.StorageBackend {
	case config.StorageRedis:
		rs, client, err := kvstore.DialRedis(ctx, cfg.RedisURL, "ledger:")
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		store = rs
	default:
		fs, err := kvstore.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal("failed to open queue storage", zap.Error(err))
		}
		store = fs
	}
	logger.Info("queue storage ready", zap.String("backend", cfg.StorageBackend))

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tracker := optimistic.New(logger.Named("optimistic"))
	conn := connectivity.New(true, logger.Named("connectivity"), connectivity.WithChangeHook(m.SetOnline))
	m.SetOnline(true)

	docs := repository.NewPgDocumentStore(pool, logger.Named("datastore"))
	writer := remote.NewWriter(docs)

	onReplay, onSnapshot := m.QueueHooks()
	q := queue.New(store, writer, tracker, conn, logger.Named("queue"),
		queue.WithStorageKey(cfg.QueueStorageKey),
		queue.WithLimiter(ratelimiter.New(cfg.ReplayRateLimit)),
		queue.WithHooks(queue.Hooks{OnReplay: onReplay, OnSnapshot: onSnapshot}),
	)
	summary, err := q.GetSummary(ctx)
	if err != nil {
		logger.Fatal("failed to load pending queue", zap.Error(err))
	}
	logger.Info("pending queue loaded", zap.Int("pending", summary.Pending), zap.Int("failed", summary.Failed))

	svc := service.NewWriteService(writer, q, tracker, conn, logger.Named("writes"),
		service.WithWriteHook(m.OnWrite))

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	auto := worker.NewAutoProcessor(q, conn, cfg.AutoProcessInterval, logger.Named("auto"))
	stopAuto, err := auto.Start(workerCtx)
	if err != nil {
		logger.Fatal("failed to start auto processor", zap.Error(err))
	}

	probe := worker.NewProbeWorker(docs, conn, cfg.ProbeInterval, cfg.ProbeTimeout, logger.Named("probe"))
	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		probe.Run(workerCtx)
	}()

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Writes:   svc,
		Queue:    q,
		Tracker:  tracker,
		Conn:     conn,
		Listener: writer,
		Gatherer: reg,
	}, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Remove the auto processor hooks and wait for a running sweep.
	stopAuto()

	// 3. Stop the connectivity probe.
	cancelWorkers()
	<-probeDone

	logger.Info("server stopped cleanly")
}

func newLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build production logger: %w", err)
	}
	return logger, nil
}
