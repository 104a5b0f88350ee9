package main

import (
	"time"

	"github.com/chatbook/platform/libs/config"
	otelx "github.com/chatbook/platform/libs/otel"
	"github.com/chatbook/platform/services/booking-service/internal/booking"
)

type serviceConfig struct {
	otelx.Config

	ServiceName string `envconfig:"SERVICE_NAME" default:"booking-service"`
	Port        string `envconfig:"PORT" default:"8083"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9093"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"false"`

	KafkaBrokers    string        `envconfig:"KAFKA_BROKERS"`
	OutboxPollEvery time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`

	// RedisURL switches the public rate limit to a shared counter.
	RedisURL          string        `envconfig:"REDIS_URL"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitFailOpen bool          `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`

	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout     time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"10s"`
	BodyLimitBytes     int64         `envconfig:"HTTP_BODY_LIMIT_BYTES" default:"65536"`

	SlotStepMinutes int           `envconfig:"BOOKING_SLOT_STEP_MINUTES" default:"15"`
	EnforceHours    bool          `envconfig:"BOOKING_ENFORCE_HOURS" default:"true"`
	ConflictScope   string        `envconfig:"BOOKING_CONFLICT_SCOPE" default:"business"`
	SlotRetryDelay  time.Duration `envconfig:"BOOKING_SLOT_RETRY_DELAY" default:"100ms"`
}

func loadConfig(dotenvFiles ...string) (serviceConfig, error) {
	var cfg serviceConfig
	if err := config.Load("", &cfg, dotenvFiles...); err != nil {
		return serviceConfig{}, err
	}
	if _, err := config.Port("PORT", cfg.Port); err != nil {
		return serviceConfig{}, err
	}
	if _, err := config.Port("GRPC_PORT", cfg.GRPCPort); err != nil {
		return serviceConfig{}, err
	}
	if _, err := booking.ParseScope(cfg.ConflictScope); err != nil {
		return serviceConfig{}, err
	}
	cfg.Config.ServiceName = cfg.ServiceName
	return cfg, nil
}

func (c serviceConfig) bookingOptions() booking.Options {
	scope, _ := booking.ParseScope(c.ConflictScope)
	return booking.Options{
		DefaultStep:  time.Duration(c.SlotStepMinutes) * time.Minute,
		EnforceHours: c.EnforceHours,
		Scope:        scope,
	}
}
