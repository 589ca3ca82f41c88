package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
)

const maxBatchProviders = 100

// Get returns one appointment to its customer or provider. The one-time code
// is never included.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, errAppointmentNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	if !isCustomer(actor, appt) && !isProvider(actor, appt) && actor.Role != domain.RoleSystem {
		return domain.Appointment{}, errNotAuthorized
	}
	return appt.Redacted(), nil
}

// Availability reports whether the provider can still take a booking on the
// given day. Results may come from the cache; admission never does.
func (s *Service) Availability(ctx context.Context, providerID, date string) (domain.Availability, error) {
	ctx, span := s.startSpan(ctx, "Availability", attribute.String("provider_id", providerID))
	defer span.End()

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return domain.Availability{}, validationError("provider_id is required")
	}
	day, err := s.ParseDay(date)
	if err != nil {
		return domain.Availability{}, err
	}
	if a, ok := s.cache.Get(ctx, providerID, day.Key()); ok {
		return a, nil
	}
	gen := s.writes.Load()
	view, err := s.loadView(ctx, s.store, providerID, day)
	if err != nil {
		return domain.Availability{}, err
	}
	a := view.Availability()
	if s.writes.Load() == gen {
		s.cache.Set(ctx, providerID, day.Key(), a)
	}
	return a, nil
}

// AvailabilityBatch answers Availability for several providers. Unknown
// providers are left out of the result.
func (s *Service) AvailabilityBatch(ctx context.Context, providerIDs []string, date string) (map[string]domain.Availability, error) {
	if len(providerIDs) == 0 {
		return nil, validationError("provider_ids is required")
	}
	if len(providerIDs) > maxBatchProviders {
		return nil, validationError("too many provider_ids")
	}
	out := make(map[string]domain.Availability, len(providerIDs))
	for _, id := range providerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		a, err := s.Availability(ctx, id, date)
		var rej *RejectionError
		if errors.As(err, &rej) && rej.Kind == KindNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

// Queue lists the provider's admitted appointments for the day in service order.
func (s *Service) Queue(ctx context.Context, providerID, date string) ([]domain.Appointment, error) {
	day, err := s.ParseDay(date)
	if err != nil {
		return nil, err
	}
	view, err := s.loadView(ctx, s.store, strings.TrimSpace(providerID), day)
	if err != nil {
		return nil, err
	}
	return view.Queue(), nil
}

// DailyCounts counts the provider's admitted appointments for the day per tier.
func (s *Service) DailyCounts(ctx context.Context, providerID, date string) (map[string]int, error) {
	day, err := s.ParseDay(date)
	if err != nil {
		return nil, err
	}
	view, err := s.loadView(ctx, s.store, strings.TrimSpace(providerID), day)
	if err != nil {
		return nil, err
	}
	return view.CountsByTier(), nil
}

// SetCapacity changes the calling provider's daily capacity. Appointments
// already admitted are left alone.
func (s *Service) SetCapacity(ctx context.Context, actor domain.Actor, capacity int) (domain.Provider, error) {
	if actor.Role != domain.RoleProvider || actor.ID == "" {
		return domain.Provider{}, errNotAuthorized
	}
	if capacity < 1 {
		return domain.Provider{}, validationError("capacity must be at least 1")
	}
	p, err := s.store.UpsertProvider(ctx, domain.Provider{
		ID:                    actor.ID,
		Name:                  actor.Name,
		MaxAppointmentsPerDay: capacity,
	})
	if err != nil {
		return domain.Provider{}, fmt.Errorf("upsert provider: %w", err)
	}
	s.writes.Add(1)
	s.cache.InvalidateProvider(ctx, actor.ID)
	s.log.InfoContext(ctx, "capacity changed",
		slog.String("provider_id", actor.ID),
		slog.Int("capacity", capacity),
	)
	return p, nil
}

// ExpireOverdue cancels every booking still pending and unpaid after the
// payment timeout and reports how many were expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.paymentTimeout)
	overdue, err := s.store.ListExpired(ctx, cutoff, s.sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	expired := 0
	for _, a := range overdue {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.Expire(ctx, a.ID)
		var rej *RejectionError
		switch {
		case err == nil:
			expired++
		case errors.As(err, &rej):
			// paid or moved on since it was listed
		default:
			s.log.ErrorContext(ctx, "expire appointment failed",
				slog.String("appointment_id", a.ID.String()),
				slog.Any("err", err),
			)
		}
	}
	s.metrics.Expired(expired)
	return expired, nil
}
