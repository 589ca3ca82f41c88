package grpc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	bookingv1 "barberq/backend/internal/api/bookingv1"
	"barberq/backend/internal/auth"
)

// PublicMethods may be called without a bearer token.
var PublicMethods = []string{
	bookingv1.BookingService_CreatePublicBooking_FullMethodName,
	bookingv1.BookingService_CheckAvailability_FullMethodName,
	bookingv1.BookingService_CheckAvailabilityBatch_FullMethodName,
	healthpb.Health_Check_FullMethodName,
}

type ServerConfig struct {
	RequestTimeout time.Duration
	Verifier       *auth.Verifier
	RateLimiter    *RateLimiter
	// Observe is an optional interceptor placed first in the chain, typically
	// request metrics.
	Observe grpc.UnaryServerInterceptor
}

// NewServer builds a gRPC server with the booking service and the standard
// health service registered. The health server is returned so callers can
// flip serving status during shutdown.
func NewServer(svc bookingService, cfg ServerConfig, log *slog.Logger) (*grpc.Server, *health.Server) {
	if log == nil {
		log = slog.Default()
	}

	chain := make([]grpc.UnaryServerInterceptor, 0, 4)
	if cfg.Observe != nil {
		chain = append(chain, cfg.Observe)
	}
	chain = append(chain,
		RequestTimeoutInterceptor(cfg.RequestTimeout),
		auth.UnaryServerInterceptor(cfg.Verifier, log, PublicMethods...),
	)
	if cfg.RateLimiter != nil {
		chain = append(chain, cfg.RateLimiter.UnaryServerInterceptor())
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	)
	bookingv1.RegisterBookingServiceServer(srv, NewBookingServer(svc, log))

	hs := health.NewServer()
	hs.SetServingStatus(bookingv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
