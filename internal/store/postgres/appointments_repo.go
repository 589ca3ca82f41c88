package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

var _ store.BookingStore = (*AppointmentRepo)(nil)

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type slotTx struct {
	tx bun.Tx
}

var _ store.SlotTx = slotTx{}

func (r *AppointmentRepo) InSlotTransaction(ctx context.Context, providerID string, day domain.DayWindow, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockSlot(ctx, tx, slotKey(providerID, day)); err != nil {
			return err
		}
		return fn(ctx, slotTx{tx: tx})
	})
}

func slotKey(providerID string, day domain.DayWindow) string {
	return providerID + ":" + day.Key()
}

func lockSlot(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func (r *AppointmentRepo) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return getProvider(ctx, r.db, providerID)
}

func (r *AppointmentRepo) ListDay(ctx context.Context, providerID string, day domain.DayWindow, statuses ...domain.Status) ([]domain.Appointment, error) {
	return listDay(ctx, r.db, providerID, day, statuses)
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		ExcludeColumn("otp").
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r *AppointmentRepo) ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		ExcludeColumn("otp").
		Where("status = ?", domain.StatusPending).
		Where("payment_status = ?", domain.PaymentPending).
		Where("created_at < ?", createdBefore).
		OrderExpr("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	now := time.Now().UTC()
	m := domain.Provider{
		ID:                    p.ID,
		Name:                  p.Name,
		MaxAppointmentsPerDay: p.MaxAppointmentsPerDay,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = COALESCE(NULLIF(EXCLUDED.name, ''), provider.name)").
		Set("max_appointments_per_day = EXCLUDED.max_appointments_per_day").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Provider{}, err
	}
	return m, nil
}

func getProvider(ctx context.Context, db bun.IDB, providerID string) (domain.Provider, error) {
	var p domain.Provider
	err := db.NewSelect().
		Model(&p).
		Where("id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Provider{}, notFound(err)
	}
	return p, nil
}

func listDay(ctx context.Context, db bun.IDB, providerID string, day domain.DayWindow, statuses []domain.Status) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		ExcludeColumn("otp").
		Where("provider_id = ?", providerID).
		Where("date >= ?", day.Start).
		Where("date < ?", day.End).
		OrderExpr("created_at ASC, id ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (r slotTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return getProvider(ctx, r.tx, providerID)
}

func (r slotTx) ListDay(ctx context.Context, providerID string, day domain.DayWindow, statuses ...domain.Status) ([]domain.Appointment, error) {
	return listDay(ctx, r.tx, providerID, day, statuses)
}

func (r slotTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r slotTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.CreatedAt = time.Time{}
	m.UpdatedAt = time.Time{}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r slotTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	m := appt
	err := r.tx.NewUpdate().
		Model(&m).
		Column("status", "payment_status", "cancellation_reason", "displaced_by", "compensation_coins", "updated_at").
		WherePK().
		Where("status = ?", expected).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrStaleState
	}
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r slotTx) FindDisplacedBy(ctx context.Context, displacerID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("displaced_by = ?", displacerID).
		Where("status = ?", domain.StatusCancelled).
		Where("cancellation_reason = ?", domain.DisplacementMarker).
		OrderExpr("created_at DESC").
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

// GetCustomer creates an empty wallet row when none exists, so that FOR UPDATE
// always has a row to lock and concurrent first credits serialize.
func (r slotTx) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	if _, err := r.tx.NewRaw(
		"INSERT INTO customers (id) VALUES (?) ON CONFLICT (id) DO NOTHING", customerID,
	).Exec(ctx); err != nil {
		return domain.Customer{}, mapWriteError(err)
	}
	var c domain.Customer
	err := r.tx.NewSelect().
		Model(&c).
		Where("id = ?", customerID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return domain.Customer{}, notFound(err)
	}
	return c, nil
}

func (r slotTx) SaveCustomer(ctx context.Context, c domain.Customer) error {
	m := c
	m.UpdatedAt = time.Now().UTC()
	_, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = COALESCE(NULLIF(EXCLUDED.name, ''), customer.name)").
		Set("coins = EXCLUDED.coins").
		Set("completed_bookings = EXCLUDED.completed_bookings").
		Set("loyalty_rewards_earned = EXCLUDED.loyalty_rewards_earned").
		Set("last_loyalty_reward_at = EXCLUDED.last_loyalty_reward_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r slotTx) AppendCoinTransaction(ctx context.Context, txn domain.CoinTransaction) error {
	m := txn
	_, err := r.tx.NewInsert().Model(&m).Exec(ctx)
	return mapWriteError(err)
}

func (r slotTx) IncrementProviderCompleted(ctx context.Context, providerID string, day domain.DayWindow) (int, error) {
	m := domain.ProviderDailyStat{ProviderID: providerID, Day: day.Key(), Completed: 1}
	err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (provider_id, day) DO UPDATE").
		Set("completed = provider_daily_stat.completed + 1").
		Returning("completed").
		Scan(ctx)
	if err != nil {
		return 0, err
	}
	return m.Completed, nil
}

// mapWriteError turns unique violations into store.ErrConflict.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrConflict
	}
	return err
}
