// Package worker runs background jobs alongside the gRPC server.
package worker

import (
	"context"
	"log/slog"
	"time"
)

type expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ExpirySweeper periodically cancels pending bookings whose payment window
// has lapsed.
type ExpirySweeper struct {
	svc      expirer
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewExpirySweeper(svc expirer, interval time.Duration, log *slog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExpirySweeper{
		svc:      svc,
		interval: interval,
		timeout:  interval / 2,
		log:      log.With(slog.String("component", "worker.expiry")),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *ExpirySweeper) Run(ctx context.Context) {
	w.log.InfoContext(ctx, "expiry sweeper started", slog.Duration("interval", w.interval))
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.svc.ExpireOverdue(ctx)
	if err != nil {
		w.log.ErrorContext(ctx, "expiry sweep failed", slog.Int("expired", n), slog.Any("err", err))
		return
	}
	if n > 0 {
		w.log.InfoContext(ctx, "expired unpaid bookings", slog.Int("expired", n), slog.Duration("took", time.Since(start)))
	}
}
