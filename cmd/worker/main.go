package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stagehub-np/backend-stagehub/internal/booking"
	"github.com/stagehub-np/backend-stagehub/internal/config"
	"github.com/stagehub-np/backend-stagehub/internal/db"
	"github.com/stagehub-np/backend-stagehub/internal/events"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
	"github.com/stagehub-np/backend-stagehub/internal/obs"
	"github.com/stagehub-np/backend-stagehub/internal/payment"
	"github.com/stagehub-np/backend-stagehub/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := db.Connect(initCtx, cfg.DatabaseURL, "stagehub-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Warn().Err(err).Msg("instrument redis tracing")
	}

	if cfg.KhaltiPlaceholder {
		logger.Warn().Msg("khalti keys missing, using placeholder test credentials")
	}
	gateway, err := khalti.New(khalti.Config{
		PublicKey:   cfg.KhaltiPublicKey,
		SecretKey:   cfg.KhaltiSecretKey,
		GatewayURL:  cfg.KhaltiGatewayURL,
		ReturnURL:   cfg.KhaltiReturnURL,
		WebsiteURL:  cfg.KhaltiWebsiteURL,
		Environment: cfg.AppEnv,
		Timeout:     cfg.OutboundTimeout,
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(nil),
			Timeout:   cfg.OutboundTimeout,
		},
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build khalti client")
	}

	asynqClient := asynq.NewClientFromRedisClient(redisClient)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}()

	bus := &events.Bus{
		Store:     events.PgStore{Pool: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}
	bookingStore := booking.PgStore{Pool: pool}
	reconciler := &booking.Reconciler{Store: bookingStore, Events: bus, Logger: logger}

	paymentSvc := &payment.Service{
		Store:        payment.PgStore{Pool: pool},
		Bookings:     bookingStore,
		Gateway:      gateway,
		Reconciler:   reconciler,
		Events:       bus,
		IntentTTL:    cfg.IntentTTL,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	}

	pollHandler := &tasks.PollHandler{
		Svc:         paymentSvc,
		Scheduler:   tasks.Scheduler{Client: asynqClient},
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Logger:      logger,
	}

	srv := asynq.NewServerFromRedisClient(redisClient, asynq.Config{
		Concurrency: 5,
	})

	logger.Info().Msg("worker starting")
	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()
	if err := srv.Run(pollHandler.Mux()); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
