package main

import (
	"context"
	"net/http"
	"time"

	"github.com/himsog/himsog/libs/auth"
	"github.com/himsog/himsog/libs/db"
	"github.com/himsog/himsog/libs/httpx"
	"github.com/himsog/himsog/libs/kafkax"
	otelx "github.com/himsog/himsog/libs/otel"
	"github.com/himsog/himsog/libs/runtime"
	"github.com/himsog/himsog/services/scheduling-service/internal/handlers"
	"github.com/himsog/himsog/services/scheduling-service/internal/outbox"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
	"github.com/himsog/himsog/services/scheduling-service/internal/storage"
	"github.com/himsog/himsog/services/scheduling-service/internal/sweeper"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the outbox publisher and the no-show sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := runtime.SignalContext()
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()
	cfg, logger := a.cfg, a.logger

	otelShutdown, err := otelx.Setup(ctx, otelx.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTel.Endpoint,
		SampleRatio:    cfg.OTel.SampleRatio,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, outboxRepo := a.store()
	appointments := a.appointments(store)
	providerSvc := providers.NewService(storage.NewProviderRepository(a.pool))

	brokers := kafkax.SplitBrokers(cfg.Kafka.Brokers)
	publisher := outbox.NewPublisher(a.pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: cfg.Kafka.PollEvery,
		BatchSize: cfg.Kafka.BatchSize,
	})
	go publisher.Run(ctx)

	if cfg.Sweep.Enabled {
		runner, err := sweeper.New(appointments, logger, sweeper.Config{Schedule: cfg.Sweep.Schedule})
		if err != nil {
			return err
		}
		go runner.Run(ctx)
	}

	var jwks *auth.JWKSClient
	if cfg.Auth.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.Auth.JWKSURL, cfg.Auth.JWKSCache, nil)
	}
	verifier := auth.NewVerifier(cfg.Auth.HS256Secret, jwks, cfg.Auth.Issuer)

	var limiter httpx.Limiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Prefix)
		logger.Info("rate limiting enabled (redis)", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	} else {
		limiter = httpx.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		logger.Info("rate limiting enabled (memory)", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(a.pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers), Optional: len(brokers) == 0},
	)
	handlers.New(appointments, providerSvc, logger).Routes(mux,
		auth.RequireAuth(verifier),
		httpx.RateLimit(limiter, auth.SubjectKey, logger, cfg.RateLimit.FailOpen),
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(cfg.HTTP.CORSOrigins)),
		httpx.WithBodyLimit(cfg.HTTP.BodyLimitBytes),
		httpx.WithTimeout(cfg.HTTP.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}
