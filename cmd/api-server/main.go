package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/booking-engine/internal/api"
	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/events"
	"github.com/hackgods/booking-engine/internal/logger"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; this is the only plain stderr write.
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("lock_backend", cfg.LockBackend),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresMaxConns,
		AppName:  "booking-api",
	})
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if cfg.AutoMigrate {
		applied, err := db.Migrate(rootCtx, pgPool)
		if err != nil {
			log.Fatal("migration error", zap.Error(err))
		}
		log.Info("schema up to date", zap.Strings("applied", applied))
	}

	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	if cfg.UsesRedis() {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.ClientOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			PoolSize: cfg.RedisPoolSize,
			LockWait: cfg.LockWait,
		})
		if err != nil {
			log.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis")
		locker = redisclient.NewRedisEmployeeLocker(rdb, cfg.LockTTL, cfg.LockWait)
	} else {
		locker = redisclient.NewLocalEmployeeLocker(cfg.LockWait)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatal("amqp connection error", zap.Error(err))
		}
		publisher = p
		log.Info("publishing booking events", zap.String("exchange", cfg.AMQPExchange))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("error closing publisher", zap.Error(err))
		}
	}()

	svc := booking.NewService(booking.NewPgRepository(pgPool), locker, publisher, log, booking.Options{
		DefaultStepMinutes: cfg.DefaultSlotStepMinutes,
		Parallelism:        cfg.SlotQueryParallelism,
		MaxRangeDays:       cfg.MaxRangeDays,
		PendingGrace:       cfg.PendingTTL,
	})

	router := api.NewRouter(api.RouterConfig{
		Service:              svc,
		PgPool:               pgPool,
		Redis:                rdb,
		Logger:               log,
		Env:                  cfg.Env,
		Version:              version,
		RequestTimeout:       cfg.RequestTimeout,
		BookingRatePerMinute: cfg.BookingRatePerMinute,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	log.Info("api-server stopped")
}
