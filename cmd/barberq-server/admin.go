package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// newAdminServer serves liveness, readiness and Prometheus metrics on a port
// separate from gRPC.
func newAdminServer(addr string, reg *prometheus.Registry, checks []readinessCheck, log *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           adminHandler(reg, checks, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func adminHandler(reg prometheus.Gatherer, checks []readinessCheck, log *slog.Logger) http.Handler {
	log = log.With(slog.String("component", "http.admin"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		code := http.StatusOK
		report := map[string]string{}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed", slog.String("check", c.name), slog.Any("err", err))
				report[c.name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			report[c.name] = "ok"
		}
		writeJSON(w, code, report)
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
