package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// SlowQuery logs statements slower than this at warn level. Zero disables it.
	SlowQuery time.Duration
}

// Open connects through the pgx stdlib driver and verifies the connection.
// A nil log disables query logging.
func Open(ctx context.Context, databaseURL string, pool PoolConfig, log *slog.Logger) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if log != nil {
		db.AddQueryHook(&queryLogger{log: log.With(slog.String("component", "store.postgres")), slow: pool.SlowQuery})
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping reports whether the database is reachable. It backs the readiness probe.
func Ping(ctx context.Context, db *bun.DB) error {
	return db.PingContext(ctx)
}

type queryLogger struct {
	log  *slog.Logger
	slow time.Duration
}

var _ bun.QueryHook = (*queryLogger)(nil)

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(ctx context.Context, ev *bun.QueryEvent) {
	took := time.Since(ev.StartTime)
	switch {
	case ev.Err != nil && !errors.Is(ev.Err, sql.ErrNoRows):
		h.log.DebugContext(ctx, "query failed",
			slog.String("op", ev.Operation()),
			slog.Duration("took", took),
			slog.Any("err", ev.Err),
		)
	case h.slow > 0 && took > h.slow:
		h.log.WarnContext(ctx, "slow query",
			slog.String("op", ev.Operation()),
			slog.Duration("took", took),
			slog.String("query", ev.Query),
		)
	}
}
