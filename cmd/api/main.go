package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"liveclass/internal/api"
	"liveclass/internal/attendance"
	"liveclass/internal/auth"
	"liveclass/internal/config"
	"liveclass/internal/httpmiddleware"
	"liveclass/internal/identity"
	"liveclass/internal/interaction"
	"liveclass/internal/logging"
	"liveclass/internal/notification"
	"liveclass/internal/queue"
	"liveclass/internal/realtime"
	"liveclass/internal/session"
	"liveclass/internal/store"
	"liveclass/internal/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err != nil {
		logger.Warn("db not reachable", zap.Error(err))
	} else if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db.Client, logger); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var broker realtime.Broker
	if cfg.BrokerBackend == "memory" {
		// Without a worker bridging Postgres into Redis, listen in-process.
		mem := realtime.NewInMemory()
		broker = mem
		go func() {
			if err := realtime.NewListener(cfg.DatabaseURL, mem, logger).Run(ctx); err != nil {
				logger.Error("change listener stopped", zap.Error(err))
			}
		}()
	} else {
		broker = realtime.NewRedisBroker(redisClient.Client, "")
	}

	tokens := auth.Tokens{
		Issuer:     cfg.JWTIssuer,
		Key:        cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}

	interactions := interaction.NewService(interaction.NewRepository(db.Client), logger)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		q = mem
		go func() {
			if err := worker.Run(ctx, mem, worker.NewDispatcher(interactions, logger), logger); err != nil {
				logger.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	notifications := notification.NewService(notification.NewRepository(db.Client), cfg.NotificationFeedLimit, logger)

	router := api.NewRouter(api.Deps{
		Identity:      identity.NewService(identity.NewRepository(db.Client), tokens, logger),
		Sessions:      session.NewService(session.NewRepository(db.Client), q, logger, session.WithDefaultDuration(cfg.DefaultSessionMinutes)),
		Attendance:    attendance.NewService(attendance.NewRepository(db.Client), logger),
		Notifications: notifications,
		Stream:        notification.NewStream(notifications, broker, logger),
		Interaction:   interactions,
		Broker:        broker,
		Feeds:         realtime.NewServer(logger),
		Tokens:        tokens,
		Limiter:       httpmiddleware.NewLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Health: map[string]api.HealthCheck{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
		Logger:     logger,
		Version:    version,
		Started:    time.Now(),
		Production: cfg.Production(),
	})

	// WriteTimeout stays unset: websocket feeds are long-lived responses and
	// manage their own write deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
