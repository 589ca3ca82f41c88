package grpc

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"barberq/backend/internal/auth"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// Idle is how long an unused bucket is kept before it is dropped.
	Idle time.Duration
}

// RateLimiter hands out one token bucket per caller. Authenticated callers are
// keyed by actor id, anonymous ones by peer address.
type RateLimiter struct {
	cfg      RateLimiterConfig
	limiters *gocache.Cache
	log      *slog.Logger
}

func NewRateLimiter(cfg RateLimiterConfig, log *slog.Logger) *RateLimiter {
	if cfg.Idle <= 0 {
		cfg.Idle = 10 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: gocache.New(cfg.Idle, 2*cfg.Idle),
		log:      log.With(slog.String("component", "grpc.ratelimit")),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		rl.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)
	if err := rl.limiters.Add(key, l, gocache.DefaultExpiration); err != nil {
		// Lost a race with another request from the same caller.
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// UnaryServerInterceptor must run after the auth interceptor so the actor is
// already in the context.
func (rl *RateLimiter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if rl.cfg.Rate == rate.Inf {
			return handler(ctx, req)
		}
		key := callerKey(ctx)
		if !rl.limiter(key).Allow() {
			rl.log.WarnContext(ctx, "rate limit exceeded", slog.String("caller", key), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func callerKey(ctx context.Context) string {
	if a, ok := auth.ActorFrom(ctx); ok && a.ID != "" {
		return "actor:" + a.ID
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return "peer:" + p.Addr.String()
	}
	return "anonymous"
}
