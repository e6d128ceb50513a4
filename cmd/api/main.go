package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stagehub-np/backend-stagehub/internal/booking"
	"github.com/stagehub-np/backend-stagehub/internal/config"
	"github.com/stagehub-np/backend-stagehub/internal/db"
	"github.com/stagehub-np/backend-stagehub/internal/events"
	"github.com/stagehub-np/backend-stagehub/internal/health"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
	"github.com/stagehub-np/backend-stagehub/internal/obs"
	"github.com/stagehub-np/backend-stagehub/internal/payment"
	"github.com/stagehub-np/backend-stagehub/internal/ratelimit"
	"github.com/stagehub-np/backend-stagehub/internal/security"
	"github.com/stagehub-np/backend-stagehub/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "stagehub-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := db.Connect(initCtx, cfg.DatabaseURL, "stagehub-api")
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
	if err := redisClient.Ping(initCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
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

	paymentMetrics := payment.NewMetrics()
	paymentMetrics.Register(nil)

	paymentSvc := &payment.Service{
		Store:        payment.PgStore{Pool: pool},
		Bookings:     bookingStore,
		Gateway:      gateway,
		Reconciler:   reconciler,
		Poller:       tasks.Scheduler{Client: asynqClient},
		Events:       bus,
		Metrics:      paymentMetrics,
		IntentTTL:    cfg.IntentTTL,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc, Logger: logger}
	webhookHandler := &payment.Webhook{
		Svc:       paymentSvc,
		Verifier:  gateway,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Metrics:   paymentMetrics,
		Logger:    logger,
	}

	limiter, err := ratelimit.New(redisClient, cfg.RateLimitPerMin)
	if err != nil {
		logger.Fatal().Err(err).Msg("build rate limiter")
	}

	buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
	httpMetrics := obs.NewHTTPMetrics("stagehub", buckets, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{Checker: health.Deps{Pool: pool, Redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	bodyLimit := security.BodyLimit{Max: 1 << 20}
	r.Route("/api/v1", func(v chi.Router) {
		v.With(ratelimit.Middleware(limiter, logger)).Route("/payments", func(p chi.Router) {
			p.Post("/", paymentHandler.Initiate)
			p.Get("/{pidx}", paymentHandler.Status)
		})
		v.With(bodyLimit.Middleware).Post("/webhooks/khalti", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	} else {
		logger.Info().Msg("server shutdown complete")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
