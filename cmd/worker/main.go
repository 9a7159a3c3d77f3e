package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liveclass/internal/config"
	"liveclass/internal/interaction"
	"liveclass/internal/logging"
	"liveclass/internal/queue"
	"liveclass/internal/realtime"
	"liveclass/internal/store"
	"liveclass/internal/worker"
)

// Worker bridges Postgres row changes into the Redis broker and runs queued
// session cleanup jobs.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumers will keep retrying")
	}

	broker := realtime.NewRedisBroker(redisClient.Client, "")
	q := queue.NewRedisQueue(redisClient.Client, "")
	interactions := interaction.NewService(interaction.NewRepository(db.Client), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return realtime.NewListener(cfg.DatabaseURL, broker, logger).Run(ctx)
	})
	g.Go(func() error {
		return worker.Run(ctx, q, worker.NewDispatcher(interactions, logger), logger)
	})
	g.Go(func() error {
		return serveMetrics(ctx, ":"+cfg.WorkerMetricsPort, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker exited with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
