// Package metrics exposes Prometheus collectors for the booking engine and
// the gRPC surface.
package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"barberq/backend/internal/domain"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking engine metrics
	Admissions      *prometheus.CounterVec
	Displacements   *prometheus.CounterVec
	CoinsAwarded    prometheus.Counter
	Reinstatements  prometheus.Counter
	Transitions     *prometheus.CounterVec
	ExpiredBookings prometheus.Counter

	// gRPC metrics
	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "admissions_total",
			Help:      "Booking admission decisions by tier and outcome",
		}, []string{"tier", "outcome"}),
		Displacements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "displacements_total",
			Help:      "Bookings cancelled to make room for a higher tier, by victim tier",
		}, []string{"tier"}),
		CoinsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "compensation_coins_total",
			Help:      "Coins credited to displaced customers",
		}),
		Reinstatements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "reinstatements_total",
			Help:      "Displaced bookings restored after the displacing booking was cancelled",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Lifecycle operations by operation and outcome",
		}, []string{"op", "outcome"}),
		ExpiredBookings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "expired_total",
			Help:      "Unpaid pending bookings cancelled by the expiry sweep",
		}),

		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Unary RPCs by method and status code",
		}, []string{"method", "code"}),
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of unary RPCs",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),
	}
}

func (m *Metrics) Admission(tier, outcome string) {
	m.Admissions.WithLabelValues(tierLabel(tier), outcome).Inc()
}

func (m *Metrics) Displacement(tier string, coins int) {
	m.Displacements.WithLabelValues(tierLabel(tier)).Inc()
	if coins > 0 {
		m.CoinsAwarded.Add(float64(coins))
	}
}

func (m *Metrics) Reinstatement() {
	m.Reinstatements.Inc()
}

func (m *Metrics) Transition(op, outcome string) {
	m.Transitions.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Expired(n int) {
	if n > 0 {
		m.ExpiredBookings.Add(float64(n))
	}
}

// UnaryServerInterceptor records request counts and latency per method.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RPCLatency.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		m.RPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// tierLabel keeps label cardinality bounded; tier strings come from clients.
func tierLabel(tier string) string {
	return strings.ToLower(strings.ReplaceAll(domain.ParseTier(tier).String(), " ", "_"))
}
