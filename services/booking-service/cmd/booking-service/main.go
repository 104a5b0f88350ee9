package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chatbook/platform/libs/db"
	"github.com/chatbook/platform/libs/grpcx"
	"github.com/chatbook/platform/libs/httpx"
	"github.com/chatbook/platform/libs/kafkax"
	otelx "github.com/chatbook/platform/libs/otel"
	"github.com/chatbook/platform/libs/runtime"
	"github.com/chatbook/platform/services/booking-service/internal/booking"
	"github.com/chatbook/platform/services/booking-service/internal/handlers"
	"github.com/chatbook/platform/services/booking-service/internal/outbox"
	"github.com/chatbook/platform/services/booking-service/internal/storage"
	"github.com/chatbook/platform/services/booking-service/migrations"
)

func main() {
	cfg, err := loadConfig(".env")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Config)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := migrations.Apply(ctx, pool); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	var limiter httpx.Limiter = httpx.NewMemoryRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, "booking:ratelimit:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	outboxRepo := outbox.NewRepository()
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	svc := booking.NewService(
		storage.NewCatalogRepository(pool),
		storage.NewCustomerRepository(pool),
		bookingRepo,
		logger,
		cfg.bookingOptions(),
	)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
	})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(svc, logger, cfg.SlotRetryDelay).
		Register(mux, httpx.WithRateLimit(limiter, logger, cfg.RateLimitFailOpen))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id"},
			ExposedHeaders: []string{"Location", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := grpcx.NewServer(logger)
	go grpcx.WatchReadiness(ctx, healthServer, "", 5*time.Second, func(ctx context.Context) error {
		return runtime.CheckAll(ctx, checks)
	})
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	runtime.Shutdown(logger, 10*time.Second, map[string]func(context.Context) error{
		"http": srv.Shutdown,
		"grpc": func(ctx context.Context) error {
			return stopGRPC(ctx, grpcServer)
		},
		"otel": otelShutdown,
		"redis": func(context.Context) error {
			if rdb == nil {
				return nil
			}
			return rdb.Close()
		},
	})
	logger.Info("booking-service stopped")
}

type grpcStopper interface {
	GracefulStop()
	Stop()
}

// stopGRPC drains in-flight calls but force-closes once ctx ends, since open
// health Watch streams never finish on their own.
func stopGRPC(ctx context.Context, srv grpcStopper) error {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		<-done
		return ctx.Err()
	}
}
