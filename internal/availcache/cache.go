// Package availcache holds short-lived availability answers for the booking
// service. Entries are dropped whenever the (provider, day) key is written.
package availcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"barberq/backend/internal/domain"
)

const keyPrefix = "barberq:avail:"

func key(providerID, day string) string {
	return keyPrefix + providerID + ":" + day
}

func providerPrefix(providerID string) string {
	return keyPrefix + providerID + ":"
}

// Local is an in-process cache for single-instance deployments.
type Local struct {
	c *gocache.Cache
}

func NewLocal(ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Local{c: gocache.New(ttl, 2*ttl)}
}

func (l *Local) Get(_ context.Context, providerID, day string) (domain.Availability, bool) {
	v, ok := l.c.Get(key(providerID, day))
	if !ok {
		return domain.Availability{}, false
	}
	a, ok := v.(domain.Availability)
	return a, ok
}

func (l *Local) Set(_ context.Context, providerID, day string, a domain.Availability) {
	l.c.SetDefault(key(providerID, day), a)
}

func (l *Local) Invalidate(_ context.Context, providerID, day string) {
	l.c.Delete(key(providerID, day))
}

func (l *Local) InvalidateProvider(_ context.Context, providerID string) {
	prefix := providerPrefix(providerID)
	for k := range l.c.Items() {
		if strings.HasPrefix(k, prefix) {
			l.c.Delete(k)
		}
	}
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Redis shares cached answers between server instances. Cache errors are
// logged and treated as misses.
type Redis struct {
	rdb redisClient
	ttl time.Duration
	log *slog.Logger
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, log *slog.Logger) *Redis {
	return newRedis(rdb, ttl, log)
}

func newRedis(rdb redisClient, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log.With(slog.String("component", "availcache.redis"))}
}

func (r *Redis) Get(ctx context.Context, providerID, day string) (domain.Availability, bool) {
	b, err := r.rdb.Get(ctx, key(providerID, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Availability{}, false
	}
	if err != nil {
		r.log.WarnContext(ctx, "cache get failed", slog.String("provider_id", providerID), slog.Any("err", err))
		return domain.Availability{}, false
	}
	var a domain.Availability
	if err := json.Unmarshal(b, &a); err != nil {
		r.log.WarnContext(ctx, "cache entry unreadable", slog.String("provider_id", providerID), slog.Any("err", err))
		return domain.Availability{}, false
	}
	return a, true
}

func (r *Redis) Set(ctx context.Context, providerID, day string, a domain.Availability) {
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key(providerID, day), b, r.ttl).Err(); err != nil {
		r.log.WarnContext(ctx, "cache set failed", slog.String("provider_id", providerID), slog.Any("err", err))
	}
}

func (r *Redis) Invalidate(ctx context.Context, providerID, day string) {
	if err := r.rdb.Del(ctx, key(providerID, day)).Err(); err != nil {
		r.log.WarnContext(ctx, "cache invalidate failed",
			slog.String("provider_id", providerID),
			slog.String("day", day),
			slog.Any("err", err),
		)
	}
}

func (r *Redis) InvalidateProvider(ctx context.Context, providerID string) {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, providerPrefix(providerID)+"*", 100).Result()
		if err != nil {
			r.log.WarnContext(ctx, "cache scan failed", slog.String("provider_id", providerID), slog.Any("err", err))
			return
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				r.log.WarnContext(ctx, "cache invalidate failed", slog.String("provider_id", providerID), slog.Any("err", err))
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
