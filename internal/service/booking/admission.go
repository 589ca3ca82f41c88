package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
)

type CreateInput struct {
	ProviderID     string           `json:"provider_id" validate:"required,max=128"`
	Date           string           `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string           `json:"time" validate:"required,max=32"`
	TierLabel      string           `json:"tier" validate:"max=64"`
	Services       []domain.Service `json:"services"`
	TotalPrice     decimal.Decimal  `json:"total_price"`
	IsOffline      bool             `json:"is_offline"`
	CustomerName   string           `json:"customer_name" validate:"required_if=IsOffline true,max=200"`
	CustomerPhone  string           `json:"customer_phone" validate:"required_if=IsOffline true,max=32"`
	IdempotencyKey string           `json:"idempotency_key" validate:"max=256"`
}

type PublicInput struct {
	ProviderID    string           `json:"provider_id" validate:"required,max=128"`
	Date          string           `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string           `json:"time" validate:"required,max=32"`
	TierLabel     string           `json:"tier" validate:"max=64"`
	Services      []domain.Service `json:"services"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
	CustomerName  string           `json:"customer_name" validate:"required,max=200"`
	CustomerPhone string           `json:"customer_phone" validate:"required,max=32"`
}

// Create admits a booking made by an authenticated actor. Online bookings
// belong to the calling customer, carry a one-time code and await payment.
// Offline walk-ins are entered by the provider and are paid on the spot.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (domain.Appointment, error) {
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	if err := s.check(in); err != nil {
		return domain.Appointment{}, err
	}
	day, err := s.ParseDay(in.Date)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		ProviderID: in.ProviderID,
		Date:       day.Start,
		Time:       strings.TrimSpace(in.Time),
		Services:   in.Services,
		TierLabel:  strings.TrimSpace(in.TierLabel),
		Status:     domain.StatusPending,
		TotalPrice: totalPrice(in.TotalPrice, in.Services),
	}

	var who string
	if in.IsOffline {
		if actor.Role != domain.RoleProvider || actor.ID != in.ProviderID {
			return domain.Appointment{}, errNotAuthorized
		}
		appt.IsOffline = true
		appt.CustomerName = in.CustomerName
		appt.CustomerPhone = in.CustomerPhone
		appt.PaymentStatus = domain.PaymentCompleted
		who = in.CustomerName
	} else {
		if actor.Role != domain.RoleCustomer || actor.ID == "" {
			return domain.Appointment{}, errNotAuthorized
		}
		customerID := actor.ID
		appt.CustomerID = &customerID
		appt.PaymentStatus = domain.PaymentPending
		code, err := s.otp()
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("generate otp: %w", err)
		}
		appt.OTP = code
		who = actor.Name
		if who == "" {
			who = "a customer"
		}
	}

	idempotent := false
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("barberq:create_booking:"+actor.ID+":"+key))
		idempotent = true
	}
	return s.admit(ctx, appt, day, who, false, idempotent)
}

// CreatePublic admits an unauthenticated walk-in booking. It is treated as
// offline but stays unpaid until MarkPaid.
func (s *Service) CreatePublic(ctx context.Context, in PublicInput) (domain.Appointment, error) {
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	if err := s.check(in); err != nil {
		return domain.Appointment{}, err
	}
	day, err := s.ParseDay(in.Date)
	if err != nil {
		return domain.Appointment{}, err
	}
	appt := domain.Appointment{
		ProviderID:    in.ProviderID,
		IsOffline:     true,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		Date:          day.Start,
		Time:          strings.TrimSpace(in.Time),
		Services:      in.Services,
		TierLabel:     strings.TrimSpace(in.TierLabel),
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		TotalPrice:    totalPrice(in.TotalPrice, in.Services),
	}
	return s.admit(ctx, appt, day, in.CustomerName, true, false)
}

// admit runs the whole admission, including any displacement, under the
// (provider, day) lock. Nothing is written unless every step succeeds.
func (s *Service) admit(ctx context.Context, appt domain.Appointment, day domain.DayWindow, who string, public, idempotent bool) (out domain.Appointment, err error) {
	tier := appt.Tier()
	ctx, span := s.startSpan(ctx, "Admit",
		attribute.String("provider_id", appt.ProviderID),
		attribute.String("day", day.Key()),
		attribute.String("tier", tier.String()),
	)
	defer func() {
		endSpan(span, err)
		s.metrics.Admission(tier.String(), outcome(err))
	}()

	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	log := s.log.With(
		slog.String("provider_id", appt.ProviderID),
		slog.String("day", day.Key()),
		slog.String("tier", tier.String()),
	)

	var ob outbox
	replayed := false
	err = s.store.InSlotTransaction(ctx, appt.ProviderID, day, func(ctx context.Context, tx store.SlotTx) error {
		ob = outbox{}
		if idempotent {
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, appt) {
					return errIdempotencyConflict
				}
				out = existing
				replayed = true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		view, err := s.loadView(ctx, tx, appt.ProviderID, day)
		if err != nil {
			return err
		}
		if view.Full() {
			if tier != domain.TierBlackPremium {
				return errFullyBooked
			}
			victim, ok := view.NextVictim()
			if !ok {
				return errFullyBookedTopTier
			}
			if err := s.displace(ctx, tx, view.Provider, victim, appt.ID, &ob); err != nil {
				return err
			}
		}

		created, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		out = created

		title, msg := s.msgNewBooking(created, who, public)
		ob.notify(created.ProviderID, title, msg, created.ID)
		return nil
	})
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			log.InfoContext(ctx, "booking rejected", slog.String("reason", string(rej.Kind)))
		} else {
			log.ErrorContext(ctx, "admission failed", slog.Any("err", err))
		}
		return domain.Appointment{}, err
	}
	if replayed {
		log.InfoContext(ctx, "idempotent booking replayed", slog.String("appointment_id", out.ID.String()))
		return out, nil
	}

	s.flush(ctx, appt.ProviderID, day, &ob)
	log.InfoContext(ctx, "booking admitted", slog.String("appointment_id", out.ID.String()))
	return out, nil
}

// displace cancels victim in favour of displacerID and credits its customer
// the tier's compensation.
func (s *Service) displace(ctx context.Context, tx store.SlotTx, provider domain.Provider, victim domain.Appointment, displacerID uuid.UUID, ob *outbox) error {
	coins := 0
	if victim.HasCustomer() {
		coins = victim.Tier().Compensation()
	}
	prev := victim.Status
	victim.Status = domain.StatusCancelled
	victim.CancellationReason = domain.DisplacementMarker
	victim.DisplacedBy = &displacerID
	victim.CompensationCoins = coins

	updated, err := tx.UpdateAppointment(ctx, victim, prev)
	if err != nil {
		return fmt.Errorf("cancel displaced appointment %s: %w", victim.ID, err)
	}

	if victim.HasCustomer() {
		if _, err := s.adjustCoins(ctx, tx, *victim.CustomerID, coins, updated.ID,
			fmt.Sprintf("Compensation for %s booking displaced by a higher priority booking", victim.Tier())); err != nil {
			return err
		}
		title, msg := s.msgDisplaced(provider, coins)
		ob.notify(*victim.CustomerID, title, msg, updated.ID)
	}
	ob.publish(domain.EventDisplaced, updated)

	tier := victim.Tier().String()
	ob.record(func(r Recorder) { r.Displacement(tier, coins) })
	s.log.InfoContext(ctx, "appointment displaced",
		slog.String("appointment_id", updated.ID.String()),
		slog.String("displaced_by", displacerID.String()),
		slog.String("tier", tier),
		slog.Int("coins", coins),
	)
	return nil
}

// adjustCoins credits (or, for negative delta, debits) a customer's wallet,
// clamping the balance at zero, and logs the applied amount. A zero change
// writes nothing.
func (s *Service) adjustCoins(ctx context.Context, tx store.SlotTx, customerID string, delta int, apptID uuid.UUID, description string) (int, error) {
	if delta == 0 {
		return 0, nil
	}
	c, err := s.lockCustomer(ctx, tx, customerID)
	if err != nil {
		return 0, err
	}
	applied := c.Credit(delta)
	if applied == 0 {
		return 0, nil
	}
	if err := tx.SaveCustomer(ctx, c); err != nil {
		return 0, fmt.Errorf("save customer: %w", err)
	}
	if err := appendTxn(ctx, tx, customerID, applied, apptID, description); err != nil {
		return 0, err
	}
	return applied, nil
}

func (s *Service) lockCustomer(ctx context.Context, tx store.SlotTx, customerID string) (domain.Customer, error) {
	c, err := tx.GetCustomer(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Customer{ID: customerID}, nil
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func appendTxn(ctx context.Context, tx store.SlotTx, customerID string, amount int, apptID uuid.UUID, description string) error {
	kind := domain.TransactionCredit
	if amount < 0 {
		kind = domain.TransactionDebit
		amount = -amount
	}
	id := apptID
	err := tx.AppendCoinTransaction(ctx, domain.CoinTransaction{
		CustomerID:    customerID,
		AppointmentID: &id,
		Kind:          kind,
		Amount:        amount,
		Description:   description,
	})
	if err != nil {
		return fmt.Errorf("append coin transaction: %w", err)
	}
	return nil
}

func totalPrice(given decimal.Decimal, services []domain.Service) decimal.Decimal {
	if !given.IsZero() || len(services) == 0 {
		return given
	}
	sum := decimal.Zero
	for _, svc := range services {
		sum = sum.Add(svc.Price)
	}
	return sum
}

func sameBooking(a, b domain.Appointment) bool {
	sameCustomer := (a.CustomerID == nil) == (b.CustomerID == nil)
	if sameCustomer && a.CustomerID != nil {
		sameCustomer = *a.CustomerID == *b.CustomerID
	}
	return sameCustomer &&
		a.ProviderID == b.ProviderID &&
		a.Date.Equal(b.Date) &&
		a.Time == b.Time &&
		a.TierLabel == b.TierLabel &&
		a.IsOffline == b.IsOffline
}
