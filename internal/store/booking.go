package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"barberq/backend/internal/domain"
)

// SlotReader is the read side of the slot ledger. ListDay never returns
// one-time codes.
type SlotReader interface {
	GetProvider(ctx context.Context, providerID string) (domain.Provider, error)
	ListDay(ctx context.Context, providerID string, day domain.DayWindow, statuses ...domain.Status) ([]domain.Appointment, error)
}

// SlotTx is a unit of work holding the lock for one (provider, day) key.
type SlotTx interface {
	SlotReader

	// GetAppointment locks the row for the rest of the transaction and includes the one-time code.
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// UpdateAppointment writes the mutable lifecycle columns only when the stored
	// status still equals expected, otherwise it returns ErrStaleState.
	UpdateAppointment(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error)
	// FindDisplacedBy returns the reinstatable appointment displaced by displacerID.
	FindDisplacedBy(ctx context.Context, displacerID uuid.UUID) (domain.Appointment, error)

	// GetCustomer locks the customer row for the rest of the transaction. A
	// store may create an empty row for an unknown customer; ErrNotFound means
	// the caller starts from a zero balance.
	GetCustomer(ctx context.Context, customerID string) (domain.Customer, error)
	SaveCustomer(ctx context.Context, c domain.Customer) error
	AppendCoinTransaction(ctx context.Context, txn domain.CoinTransaction) error
	IncrementProviderCompleted(ctx context.Context, providerID string, day domain.DayWindow) (int, error)
}

type BookingStore interface {
	SlotReader

	// InSlotTransaction runs fn serialized against every other transaction on
	// the same provider and day. fn's changes commit only if it returns nil.
	InSlotTransaction(ctx context.Context, providerID string, day domain.DayWindow, fn func(ctx context.Context, tx SlotTx) error) error

	// GetAppointment is an unlocked read without the one-time code.
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListExpired returns pending, unpaid appointments created before the cutoff, oldest first.
	ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Appointment, error)
	// UpsertProvider creates the provider or updates its name and daily capacity.
	UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error)
}
