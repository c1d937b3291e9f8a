package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/broadcast"
	"github.com/iliyamo/cinema-seat-locks/internal/config"
	"github.com/iliyamo/cinema-seat-locks/internal/database"
	"github.com/iliyamo/cinema-seat-locks/internal/handler"
	"github.com/iliyamo/cinema-seat-locks/internal/hub"
	"github.com/iliyamo/cinema-seat-locks/internal/lock"
	"github.com/iliyamo/cinema-seat-locks/internal/projection"
	"github.com/iliyamo/cinema-seat-locks/internal/queue"
	"github.com/iliyamo/cinema-seat-locks/internal/repository"
	"github.com/iliyamo/cinema-seat-locks/internal/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("mysql connection failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	showtimes := repository.NewShowtimeRepo(db)
	bookings := repository.NewBookingRepo(db)

	layouts, err := projection.NewLayoutCache()
	if err != nil {
		log.Fatal("layout cache init failed", zap.Error(err))
	}

	failureMode := lock.FailClosed
	if cfg.LockFailureOpen {
		failureMode = lock.FailOpen
	}
	store := lock.NewRedisStore(rdb, cfg.LockOpTimeout)
	keys := lock.NewKeys(cfg.LockPrefix)
	locks := lock.NewService(store, keys, nil, lock.Options{
		DefaultTTL:  cfg.LockDefaultTTL,
		MinTTL:      cfg.LockMinTTL,
		MaxTTL:      cfg.LockMaxTTL,
		FailureMode: failureMode,
	}, log)

	projector := projection.NewProjector(showtimes, bookings, locks, layouts, cfg.ProjectionTimeout, log)
	seatHub := hub.New(log)

	var relay broadcast.Relay
	var publisher *queue.Publisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, instanceID, log)
		relay = publisher
	}

	orch := broadcast.New(seatHub, projector, relay, broadcast.Options{
		QueueSize: cfg.BroadcastQueueSize,
		Workers:   cfg.BroadcastWorkers,
	}, log)
	locks.SetSink(orch)

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	if cfg.RabbitURL != "" {
		go queue.StartSeatEventConsumer(consumerCtx, cfg.RabbitURL, instanceID, orch, log)
		go queue.StartBookingConsumer(consumerCtx, cfg.RabbitURL, locks, log)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())

	rl := router.RateLimitSettings{}
	if cfg.RateLimitEnabled {
		rl = router.RateLimitSettings{Client: rdb, Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow}
	}
	router.Register(e,
		&handler.LockHandler{Locks: locks, Showtimes: showtimes, Log: log},
		&handler.SeatsHandler{Projector: projector, Log: log},
		&handler.WSHandler{Hub: seatHub, Showtimes: showtimes, JWTSecret: cfg.JWTSecret, Log: log},
		&handler.HealthHandler{Locks: locks},
		rl,
	)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("instance_id", instanceID))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	seatHub.Shutdown()
	orch.Stop()
	stopConsumers()
	if publisher != nil {
		publisher.Close()
	}
}

func newLogger(env string) *zap.Logger {
	if env == "prod" || env == "production" {
		log, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return log
}
