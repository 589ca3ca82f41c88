package booking

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
)

const (
	reasonDeclined  = "Declined by the provider."
	reasonCancelled = "Cancelled by the customer."
	reasonAbandoned = "Payment abandoned by the customer."
	reasonExpired   = "Payment not received in time."
)

var blockingStatuses = []domain.Status{domain.StatusPending, domain.StatusConfirmed}

type transition func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error)

// withAppointment locks the appointment's (provider, day) key, re-reads the
// appointment under that lock and applies fn.
func (s *Service) withAppointment(ctx context.Context, op string, id uuid.UUID, fn transition) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("appointment_id", id.String()))
	defer func() {
		endSpan(span, err)
		s.metrics.Transition(op, outcome(err))
	}()

	pre, err := s.lookup(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	day := domain.DayOf(pre.Date, s.loc)
	log := s.log.With(
		slog.String("op", op),
		slog.String("appointment_id", id.String()),
		slog.String("provider_id", pre.ProviderID),
		slog.String("day", day.Key()),
	)

	var ob outbox
	err = s.store.InSlotTransaction(ctx, pre.ProviderID, day, func(ctx context.Context, tx store.SlotTx) error {
		ob = outbox{}
		appt, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		out, err = fn(ctx, tx, day, appt, &ob)
		return err
	})
	if err != nil {
		var rej *RejectionError
		var vErr *ValidationError
		switch {
		case errors.As(err, &rej):
			log.InfoContext(ctx, "transition rejected", slog.String("reason", string(rej.Kind)))
		case errors.As(err, &vErr):
			log.InfoContext(ctx, "transition invalid", slog.String("reason", vErr.Error()))
		default:
			log.ErrorContext(ctx, "transition failed", slog.Any("err", err))
		}
		return domain.Appointment{}, err
	}

	s.flush(ctx, pre.ProviderID, day, &ob)
	log.InfoContext(ctx, "transition applied", slog.String("status", string(out.Status)))
	return out.Redacted(), nil
}

// lookup is the unlocked read that finds which (provider, day) key to lock.
func (s *Service) lookup(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, errAppointmentNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func lockAppointment(ctx context.Context, tx store.SlotTx, id uuid.UUID) (domain.Appointment, error) {
	a, err := tx.GetAppointment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, errAppointmentNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("lock appointment: %w", err)
	}
	return a, nil
}

func isProvider(actor domain.Actor, a domain.Appointment) bool {
	return actor.Role == domain.RoleProvider && actor.ID != "" && actor.ID == a.ProviderID
}

func isCustomer(actor domain.Actor, a domain.Appointment) bool {
	return actor.Role == domain.RoleCustomer && actor.ID != "" && a.IsCustomer(actor.ID)
}

func customerOf(a domain.Appointment) string {
	if a.HasCustomer() {
		return *a.CustomerID
	}
	return ""
}

func (s *Service) update(ctx context.Context, tx store.SlotTx, appt domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	updated, err := tx.UpdateAppointment(ctx, appt, expected)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	updated.OTP = appt.OTP
	return updated, nil
}

// Accept confirms a pending booking.
func (s *Service) Accept(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "Accept", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isProvider(actor, appt) {
			return domain.Appointment{}, errNotAuthorized
		}
		if appt.Status != domain.StatusPending {
			return domain.Appointment{}, transitionError(string(appt.Status), "accept")
		}
		appt.Status = domain.StatusConfirmed
		updated, err := s.update(ctx, tx, appt, domain.StatusPending)
		if err != nil {
			return domain.Appointment{}, err
		}
		provider, err := tx.GetProvider(ctx, appt.ProviderID)
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("get provider: %w", err)
		}
		title, msg := s.msgAccepted(provider, updated)
		ob.notify(customerOf(updated), title, msg, updated.ID)
		return updated, nil
	})
}

// Decline cancels a booking on behalf of its provider.
func (s *Service) Decline(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "Decline", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isProvider(actor, appt) {
			return domain.Appointment{}, errNotAuthorized
		}
		if !domain.StatusIn(appt.Status, domain.StatusPending, domain.StatusConfirmed) {
			return domain.Appointment{}, transitionError(string(appt.Status), "decline")
		}
		view, err := s.loadView(ctx, tx, appt.ProviderID, day)
		if err != nil {
			return domain.Appointment{}, err
		}
		if _, blocked := view.BlockingHigherPriorityUnpaid(appt, blockingStatuses...); blocked {
			return domain.Appointment{}, blockedError("decline")
		}

		updated, err := s.cancel(ctx, tx, appt, reasonDeclined)
		if err != nil {
			return domain.Appointment{}, err
		}
		if err := s.reinstate(ctx, tx, view.Provider, updated, ob); err != nil {
			return domain.Appointment{}, err
		}
		ob.publish(domain.EventCancelled, updated)
		title, msg := s.msgDeclined(view.Provider, updated)
		ob.notify(customerOf(updated), title, msg, updated.ID)
		return updated, nil
	})
}

// Cancel cancels an unpaid booking on behalf of its customer.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "Cancel", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isCustomer(actor, appt) {
			return domain.Appointment{}, errNotAuthorized
		}
		if !domain.StatusIn(appt.Status, domain.StatusPending, domain.StatusConfirmed) {
			return domain.Appointment{}, transitionError(string(appt.Status), "cancel")
		}
		view, err := s.loadView(ctx, tx, appt.ProviderID, day)
		if err != nil {
			return domain.Appointment{}, err
		}
		if _, blocked := view.BlockingHigherPriorityUnpaid(appt, blockingStatuses...); blocked {
			return domain.Appointment{}, blockedError("cancel")
		}
		if appt.PaymentStatus == domain.PaymentCompleted {
			return domain.Appointment{}, errAlreadyPaid
		}

		updated, err := s.cancel(ctx, tx, appt, reasonCancelled)
		if err != nil {
			return domain.Appointment{}, err
		}
		if err := s.reinstate(ctx, tx, view.Provider, updated, ob); err != nil {
			return domain.Appointment{}, err
		}
		ob.publish(domain.EventCancelled, updated)
		title, msg := s.msgCancelled(updated, customerLabel(updated, actor.Name))
		ob.notify(updated.ProviderID, title, msg, updated.ID)
		return updated, nil
	})
}

// CancelPending abandons a booking whose payment was never made. It skips the
// priority guard and gives the slot back to the booking it displaced, if any.
func (s *Service) CancelPending(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "CancelPending", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isCustomer(actor, appt) {
			return domain.Appointment{}, errNotAuthorized
		}
		if appt.PaymentStatus != domain.PaymentPending {
			return domain.Appointment{}, errAlreadyPaid
		}
		if !domain.StatusIn(appt.Status, domain.StatusPending, domain.StatusConfirmed) {
			return domain.Appointment{}, transitionError(string(appt.Status), "cancel")
		}
		provider, err := tx.GetProvider(ctx, appt.ProviderID)
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("get provider: %w", err)
		}
		if err := s.reinstate(ctx, tx, provider, appt, ob); err != nil {
			return domain.Appointment{}, err
		}
		updated, err := s.cancel(ctx, tx, appt, reasonAbandoned)
		if err != nil {
			return domain.Appointment{}, err
		}
		ob.publish(domain.EventCancelled, updated)
		return updated, nil
	})
}

// Expire cancels a booking that stayed unpaid past the payment timeout. It is
// the background sweep's entry point and shares the cancellation path with
// user cancellations, without the priority guard.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "Expire", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if appt.Status != domain.StatusPending || appt.PaymentStatus != domain.PaymentPending {
			return domain.Appointment{}, transitionError(string(appt.Status), "expire")
		}
		provider, err := tx.GetProvider(ctx, appt.ProviderID)
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("get provider: %w", err)
		}
		updated, err := s.cancel(ctx, tx, appt, reasonExpired)
		if err != nil {
			return domain.Appointment{}, err
		}
		if err := s.reinstate(ctx, tx, provider, updated, ob); err != nil {
			return domain.Appointment{}, err
		}
		ob.publish(domain.EventExpired, updated)
		title, msg := s.msgExpired(updated)
		ob.notify(customerOf(updated), title, msg, updated.ID)
		ob.notify(updated.ProviderID, title, msg, updated.ID)
		return updated, nil
	})
}

// Start begins a confirmed appointment. Online bookings must present their
// one-time code; offline bookings never have one.
func (s *Service) Start(ctx context.Context, actor domain.Actor, id uuid.UUID, otp string) (domain.Appointment, error) {
	return s.withAppointment(ctx, "Start", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isProvider(actor, appt) {
			return domain.Appointment{}, errNotAuthorized
		}
		if appt.Status != domain.StatusConfirmed {
			return domain.Appointment{}, transitionError(string(appt.Status), "start")
		}
		if !otpMatches(appt, otp) {
			return domain.Appointment{}, errInvalidOtp
		}
		appt.Status = domain.StatusStarted
		updated, err := s.update(ctx, tx, appt, domain.StatusConfirmed)
		if err != nil {
			return domain.Appointment{}, err
		}
		provider, err := tx.GetProvider(ctx, appt.ProviderID)
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("get provider: %w", err)
		}
		title, msg := s.msgStarted(provider, updated)
		ob.notify(customerOf(updated), title, msg, updated.ID)
		return updated, nil
	})
}

// VerifyOtp checks a booking's one-time code without changing it. It reads
// under the slot lock and records no transition.
func (s *Service) VerifyOtp(ctx context.Context, actor domain.Actor, id uuid.UUID, otp string) (err error) {
	ctx, span := s.startSpan(ctx, "VerifyOtp", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	pre, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	day := domain.DayOf(pre.Date, s.loc)
	return s.store.InSlotTransaction(ctx, pre.ProviderID, day, func(ctx context.Context, tx store.SlotTx) error {
		appt, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		if !isProvider(actor, appt) {
			return errNotAuthorized
		}
		if !otpMatches(appt, otp) {
			return errInvalidOtp
		}
		return nil
	})
}

func otpMatches(appt domain.Appointment, otp string) bool {
	if appt.IsOffline {
		return true
	}
	return appt.OTP != "" && subtle.ConstantTimeCompare([]byte(appt.OTP), []byte(otp)) == 1
}

// Complete finishes a started appointment and pays out loyalty coins.
func (s *Service) Complete(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "Complete", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isProvider(actor, appt) {
			return domain.Appointment{}, errNotAuthorized
		}
		if appt.Status != domain.StatusStarted {
			return domain.Appointment{}, transitionError(string(appt.Status), "complete")
		}
		view, err := s.loadView(ctx, tx, appt.ProviderID, day)
		if err != nil {
			return domain.Appointment{}, err
		}
		if _, blocked := view.BlockingHigherPriorityUnpaid(appt, domain.StatusPending, domain.StatusConfirmed, domain.StatusStarted); blocked {
			return domain.Appointment{}, blockedError("complete")
		}

		appt.Status = domain.StatusCompleted
		if appt.IsOffline {
			appt.PaymentStatus = domain.PaymentCompleted
		}
		updated, err := s.update(ctx, tx, appt, domain.StatusStarted)
		if err != nil {
			return domain.Appointment{}, err
		}
		if _, err := tx.IncrementProviderCompleted(ctx, appt.ProviderID, day); err != nil {
			return domain.Appointment{}, fmt.Errorf("increment provider completed: %w", err)
		}

		name := ""
		if updated.HasCustomer() {
			c, bonus, err := s.rewardCompletion(ctx, tx, view.Provider, updated)
			if err != nil {
				return domain.Appointment{}, err
			}
			title, msg := s.msgCompletedCustomer(view.Provider, updated, bonus, c.CompletedBookings)
			ob.notify(c.ID, title, msg, updated.ID)
			name = c.Name
		}
		title, msg := s.msgCompletedProvider(updated, customerLabel(updated, name))
		ob.notify(updated.ProviderID, title, msg, updated.ID)
		return updated, nil
	})
}

// rewardCompletion credits one coin per completed booking and a bonus of ten
// each time the customer's completed count reaches a multiple of ten.
func (s *Service) rewardCompletion(ctx context.Context, tx store.SlotTx, provider domain.Provider, appt domain.Appointment) (domain.Customer, int, error) {
	c, err := s.lockCustomer(ctx, tx, *appt.CustomerID)
	if err != nil {
		return domain.Customer{}, 0, err
	}
	c.CompletedBookings++
	c.Credit(completionCoins)
	bonus := 0
	if domain.MilestoneReached(c.CompletedBookings) {
		bonus = milestoneCoins
		c.Credit(bonus)
		c.LoyaltyRewardsEarned++
		now := s.now().UTC()
		c.LastLoyaltyRewardAt = &now
	}
	if err := tx.SaveCustomer(ctx, c); err != nil {
		return domain.Customer{}, 0, fmt.Errorf("save customer: %w", err)
	}
	if err := appendTxn(ctx, tx, c.ID, completionCoins, appt.ID,
		fmt.Sprintf("Completed booking with %s", providerLabel(provider))); err != nil {
		return domain.Customer{}, 0, err
	}
	if bonus > 0 {
		if err := appendTxn(ctx, tx, c.ID, bonus, appt.ID,
			fmt.Sprintf("Loyalty bonus for completing %d bookings", c.CompletedBookings)); err != nil {
			return domain.Customer{}, 0, err
		}
	}
	return c, bonus, nil
}

const (
	completionCoins = 1
	milestoneCoins  = 10
)

// MarkPaid records a completed payment. The owning customer, the provider and
// the system actor (payment callbacks) may mark a booking paid.
func (s *Service) MarkPaid(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error) {
	return s.withAppointment(ctx, "MarkPaid", id, func(ctx context.Context, tx store.SlotTx, day domain.DayWindow, appt domain.Appointment, ob *outbox) (domain.Appointment, error) {
		if !isCustomer(actor, appt) && !isProvider(actor, appt) && actor.Role != domain.RoleSystem {
			return domain.Appointment{}, errNotAuthorized
		}
		if appt.Status == domain.StatusCancelled {
			return domain.Appointment{}, transitionError(string(appt.Status), "pay for")
		}
		if appt.PaymentStatus == domain.PaymentCompleted {
			return appt, nil
		}
		appt.PaymentStatus = domain.PaymentCompleted
		return s.update(ctx, tx, appt, appt.Status)
	})
}

func (s *Service) cancel(ctx context.Context, tx store.SlotTx, appt domain.Appointment, reason string) (domain.Appointment, error) {
	prev := appt.Status
	appt.Status = domain.StatusCancelled
	appt.CancellationReason = reason
	appt.DisplacedBy = nil
	appt.CompensationCoins = 0
	return s.update(ctx, tx, appt, prev)
}

// reinstate restores the appointment that cancelled displaced, if it is still
// waiting, and takes back the compensation its customer received.
func (s *Service) reinstate(ctx context.Context, tx store.SlotTx, provider domain.Provider, cancelled domain.Appointment, ob *outbox) error {
	victim, err := tx.FindDisplacedBy(ctx, cancelled.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find displaced appointment: %w", err)
	}

	coins := victim.CompensationCoins
	victim.Status = domain.StatusConfirmed
	victim.CancellationReason = ""
	victim.DisplacedBy = nil
	victim.CompensationCoins = 0
	restored, err := s.update(ctx, tx, victim, domain.StatusCancelled)
	if err != nil {
		return err
	}

	if restored.HasCustomer() {
		applied, err := s.adjustCoins(ctx, tx, *restored.CustomerID, -coins, restored.ID, "Compensation reversed: booking reinstated")
		if err != nil {
			return err
		}
		title, msg := s.msgReinstated(provider, restored, -applied)
		ob.notify(*restored.CustomerID, title, msg, restored.ID)
	}
	ob.publish(domain.EventReinstated, restored)
	ob.record(func(r Recorder) { r.Reinstatement() })
	s.log.InfoContext(ctx, "appointment reinstated",
		slog.String("appointment_id", restored.ID.String()),
		slog.String("cancelled_id", cancelled.ID.String()),
		slog.Int("coins_reversed", coins),
	)
	return nil
}
