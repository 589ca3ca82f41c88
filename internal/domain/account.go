package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Provider struct {
	bun.BaseModel `bun:"table:providers"`

	ID                    string    `bun:"id,pk"`
	Name                  string    `bun:"name,notnull"`
	MaxAppointmentsPerDay int       `bun:"max_appointments_per_day,notnull"`
	CreatedAt             time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Customer holds the wallet and loyalty counters of a registered customer.
type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID                   string     `bun:"id,pk"`
	Name                 string     `bun:"name,notnull"`
	Coins                int        `bun:"coins,notnull"`
	CompletedBookings    int        `bun:"completed_bookings,notnull"`
	LoyaltyRewardsEarned int        `bun:"loyalty_rewards_earned,notnull"`
	LastLoyaltyRewardAt  *time.Time `bun:"last_loyalty_reward_at"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// Credit adds n coins. Negative n debits, clamping the balance at zero, and
// the amount actually applied is returned.
func (c *Customer) Credit(n int) int {
	if c.Coins+n < 0 {
		n = -c.Coins
	}
	c.Coins += n
	return n
}

// MilestoneReached reports whether a completed-bookings count of n crossed a
// new multiple of ten compared to n-1.
func MilestoneReached(n int) bool {
	return n > 0 && (n-1)/10 != n/10
}

type TransactionKind string

const (
	TransactionCredit TransactionKind = "credit"
	TransactionDebit  TransactionKind = "debit"
)

// CoinTransaction is an append-only wallet record.
type CoinTransaction struct {
	bun.BaseModel `bun:"table:coin_transactions"`

	ID            uuid.UUID       `bun:"id,pk,type:uuid"`
	CustomerID    string          `bun:"customer_id,notnull"`
	AppointmentID *uuid.UUID      `bun:"appointment_id,type:uuid"`
	Kind          TransactionKind `bun:"kind,notnull"`
	Amount        int             `bun:"amount,notnull"`
	Description   string          `bun:"description,notnull"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
}

func (t *CoinTransaction) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if t.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ProviderDailyStat counts completed appointments per provider and calendar day.
type ProviderDailyStat struct {
	bun.BaseModel `bun:"table:provider_daily_stats"`

	ProviderID string `bun:"provider_id,pk"`
	Day        string `bun:"day,pk"`
	Completed  int    `bun:"completed,notnull"`
}
