// Package booking admits appointments into a provider's day, displaces and
// reinstates lower priority bookings, and drives the appointment lifecycle.
package booking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/ledger"
	"barberq/backend/internal/store"
)

const (
	DefaultCapacity       = 10
	DefaultPaymentTimeout = time.Minute
	DefaultSweepBatchSize = 100
)

// Notifier delivers user-facing messages. Delivery failures never undo a
// committed transition.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Broadcaster publishes appointment events to real-time listeners.
type Broadcaster interface {
	Publish(ctx context.Context, ev domain.AppointmentEvent) error
}

// AvailabilityCache is a read-through cache in front of availability queries.
// It is never consulted by admission.
type AvailabilityCache interface {
	Get(ctx context.Context, providerID, day string) (domain.Availability, bool)
	Set(ctx context.Context, providerID, day string, a domain.Availability)
	Invalidate(ctx context.Context, providerID, day string)
	InvalidateProvider(ctx context.Context, providerID string)
}

// Recorder receives engine metrics.
type Recorder interface {
	Admission(tier, outcome string)
	Displacement(tier string, coins int)
	Reinstatement()
	Transition(op, outcome string)
	Expired(n int)
}

type Service struct {
	store     store.BookingStore
	notifier  Notifier
	broadcast Broadcaster
	cache     AvailabilityCache
	metrics   Recorder
	log       *slog.Logger
	tracer    trace.Tracer
	validate  *validator.Validate

	loc             *time.Location
	now             func() time.Time
	otp             func() (string, error)
	defaultCapacity int
	paymentTimeout  time.Duration
	sweepBatchSize  int

	// writes counts committed changes; Availability caches only when it is
	// unchanged across the read.
	writes atomic.Uint64
}

type Option func(*Service)

func WithNotifier(n Notifier) Option         { return func(s *Service) { s.notifier = n } }
func WithBroadcaster(b Broadcaster) Option   { return func(s *Service) { s.broadcast = b } }
func WithCache(c AvailabilityCache) Option   { return func(s *Service) { s.cache = c } }
func WithRecorder(r Recorder) Option         { return func(s *Service) { s.metrics = r } }
func WithLogger(l *slog.Logger) Option       { return func(s *Service) { s.log = l } }
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }
func WithOTPGenerator(f func() (string, error)) Option {
	return func(s *Service) { s.otp = f }
}

func WithDefaultCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultCapacity = n
		}
	}
}

func WithPaymentTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.paymentTimeout = d
		}
	}
}

func WithSweepBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepBatchSize = n
		}
	}
}

func NewService(st store.BookingStore, opts ...Option) *Service {
	s := &Service{
		store:           st,
		notifier:        nopNotifier{},
		broadcast:       nopBroadcaster{},
		cache:           nopCache{},
		metrics:         nopRecorder{},
		log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:          otel.Tracer("barberq/backend/internal/service/booking"),
		validate:        newValidator(),
		loc:             time.UTC,
		now:             time.Now,
		otp:             generateOTP,
		defaultCapacity: DefaultCapacity,
		paymentTimeout:  DefaultPaymentTimeout,
		sweepBatchSize:  DefaultSweepBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "booking.service"))
	return s
}

// Location is the time zone calendar days are resolved in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ParseDay resolves a YYYY-MM-DD key in the service time zone.
func (s *Service) ParseDay(key string) (domain.DayWindow, error) {
	day, err := domain.ParseDay(key, s.loc)
	if err != nil {
		return domain.DayWindow{}, validationError("date must be formatted as YYYY-MM-DD")
	}
	return day, nil
}

func (s *Service) loadView(ctx context.Context, r store.SlotReader, providerID string, day domain.DayWindow) (*ledger.View, error) {
	v, err := ledger.Load(ctx, r, providerID, day, s.defaultCapacity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errProviderNotFound
	}
	return v, err
}

// outbox collects side effects of a transaction; they run only after commit.
type outbox struct {
	notifications []domain.Notification
	events        []domain.AppointmentEvent
	recorded      []func(Recorder)
}

func (o *outbox) notify(recipient, title, message string, apptID uuid.UUID) {
	if recipient == "" {
		return
	}
	o.notifications = append(o.notifications, domain.Notification{
		RecipientID:   recipient,
		Title:         title,
		Message:       message,
		AppointmentID: apptID,
	})
}

func (o *outbox) publish(t domain.EventType, appt domain.Appointment) {
	o.events = append(o.events, domain.AppointmentEvent{Type: t, Appointment: appt.Redacted()})
}

func (o *outbox) record(f func(Recorder)) {
	o.recorded = append(o.recorded, f)
}

func (s *Service) flush(ctx context.Context, providerID string, day domain.DayWindow, o *outbox) {
	s.writes.Add(1)
	s.cache.Invalidate(ctx, providerID, day.Key())
	for _, f := range o.recorded {
		f(s.metrics)
	}
	now := s.now().UTC()
	for _, n := range o.notifications {
		n.CreatedAt = now
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.WarnContext(ctx, "notification failed",
				slog.String("recipient_id", n.RecipientID),
				slog.String("title", n.Title),
				slog.Any("err", err),
			)
		}
	}
	for _, ev := range o.events {
		ev.OccurredAt = now
		if err := s.broadcast.Publish(ctx, ev); err != nil {
			s.log.WarnContext(ctx, "broadcast failed",
				slog.String("appointment_id", ev.Appointment.ID.String()),
				slog.String("event", string(ev.Type)),
				slog.Any("err", err),
			)
		}
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			span.SetAttributes(attribute.String("booking.rejection", string(rej.Kind)))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return string(rej.Kind)
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "INVALID"
	}
	return "ERROR"
}

var otpRange = big.NewInt(900000)

// generateOTP returns a six digit code in [100000, 999999].
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Notification) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, domain.AppointmentEvent) error { return nil }

type nopCache struct{}

func (nopCache) Get(context.Context, string, string) (domain.Availability, bool) {
	return domain.Availability{}, false
}
func (nopCache) Set(context.Context, string, string, domain.Availability) {}
func (nopCache) Invalidate(context.Context, string, string)               {}
func (nopCache) InvalidateProvider(context.Context, string)               {}

type nopRecorder struct{}

func (nopRecorder) Admission(string, string)  {}
func (nopRecorder) Displacement(string, int)  {}
func (nopRecorder) Reinstatement()            {}
func (nopRecorder) Transition(string, string) {}
func (nopRecorder) Expired(int)               {}
