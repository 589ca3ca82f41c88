package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"barberq/backend/internal/auth"
	"barberq/backend/internal/availcache"
	"barberq/backend/internal/broadcast"
	"barberq/backend/internal/config"
	"barberq/backend/internal/metrics"
	"barberq/backend/internal/notify"
	"barberq/backend/internal/service/booking"
	"barberq/backend/internal/store"
	"barberq/backend/internal/store/memory"
	"barberq/backend/internal/store/postgres"
	"barberq/backend/internal/telemetry"
	grpcTransport "barberq/backend/internal/transport/grpc"
	"barberq/backend/internal/worker"
)

const serviceName = "barberq-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	var checks []readinessCheck

	var st store.BookingStore
	switch cfg.DatabaseDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		st = memory.New()
	default:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
			SlowQuery:       cfg.DBSlowQuery,
		}, log)
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return err
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		checks = append(checks, readinessCheck{name: "database", check: func(ctx context.Context) error {
			return postgres.Ping(ctx, db)
		}})
		st = postgres.NewAppointmentRepo(db)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "barberq")

	opts := []booking.Option{
		booking.WithLogger(log),
		booking.WithLocation(loc),
		booking.WithRecorder(m),
		booking.WithDefaultCapacity(cfg.DefaultCapacity),
		booking.WithPaymentTimeout(cfg.PaymentTimeout),
		booking.WithSweepBatchSize(cfg.SweepBatchSize),
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(redisOpts)
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		checks = append(checks, readinessCheck{name: "redis", check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		opts = append(opts,
			booking.WithBroadcaster(broadcast.NewRedisBroadcaster(rdb, log)),
			booking.WithCache(availcache.NewRedis(rdb, cfg.AvailabilityTTL, log)),
		)
		log.Info("redis enabled", slog.String("redis_addr", redisOpts.Addr))
	} else {
		opts = append(opts, booking.WithCache(availcache.NewLocal(cfg.AvailabilityTTL)))
	}

	if brokers := notify.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		sink, err := notify.NewKafkaSink(notify.KafkaConfig{
			Brokers: brokers,
			Topic:   cfg.NotificationTopic,
		}, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn("kafka writer close failed", slog.Any("err", err))
			}
		}()
		opts = append(opts, booking.WithNotifier(sink))
		log.Info("kafka notifications enabled", slog.String("topic", cfg.NotificationTopic))
	} else {
		opts = append(opts, booking.WithNotifier(notify.NewLogSink(log)))
	}

	svc := booking.NewService(st, opts...)

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	grpcServer, healthServer := grpcTransport.NewServer(svc, grpcTransport.ServerConfig{
		RequestTimeout: cfg.GRPCRequestTimeout,
		Verifier:       verifier,
		RateLimiter:    grpcTransport.NewRateLimiter(grpcTransport.RateLimiterConfig{Rate: limit, Burst: cfg.RateLimitBurst}, log),
		Observe:        m.UnaryServerInterceptor(),
	}, log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	adminServer := newAdminServer(cfg.HTTPAddr, reg, checks, log)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.NewExpirySweeper(svc, cfg.SweepInterval, log).Run(workerCtx)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			runErr = err
		}
	}

	stopWorker()
	<-workerDone
	shutdown(log, grpcServer, healthServer, adminServer, cfg.ShutdownTimeout)
	return runErr
}

func shutdown(log *slog.Logger, s *grpc.Server, hs *health.Server, admin *http.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))
	hs.Shutdown()

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := admin.Shutdown(ctx); err != nil {
		log.Warn("admin server shutdown failed", slog.Any("err", err))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
