package grpcx

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with tracing, request ids and failure logging,
// and registers the standard health service on it.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchReadiness flips the health status of service (empty string = whole server)
// according to check, polling every interval until ctx ends.
func WatchReadiness(ctx context.Context, hs *health.Server, service string, interval time.Duration, check func(context.Context) error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	set := func() {
		if err := check(ctx); err != nil {
			hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}
	set()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			set()
		}
	}
}
