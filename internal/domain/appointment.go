package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// DisplacementMarker is the cancellation reason written on appointments that
// were cancelled to make room for a higher priority booking.
const DisplacementMarker = "Cancelled due to a higher priority booking."

type Service struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments" json:"-"`

	ID                 uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	ProviderID         string          `bun:"provider_id,notnull" json:"provider_id"`
	CustomerID         *string         `bun:"customer_id" json:"customer_id,omitempty"`
	IsOffline          bool            `bun:"is_offline,notnull" json:"is_offline"`
	CustomerName       string          `bun:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone      string          `bun:"customer_phone" json:"customer_phone,omitempty"`
	Date               time.Time       `bun:"date,notnull" json:"date"`
	Time               string          `bun:"time,notnull" json:"time"`
	Services           []Service       `bun:"services,type:jsonb" json:"services"`
	TierLabel          string          `bun:"tier_label" json:"tier_label"`
	Status             Status          `bun:"status,notnull" json:"status"`
	PaymentStatus      PaymentStatus   `bun:"payment_status,notnull" json:"payment_status"`
	TotalPrice         decimal.Decimal `bun:"total_price,type:numeric,notnull" json:"total_price"`
	CancellationReason string          `bun:"cancellation_reason" json:"cancellation_reason,omitempty"`
	DisplacedBy        *uuid.UUID      `bun:"displaced_by,type:uuid" json:"displaced_by,omitempty"`
	CompensationCoins  int             `bun:"compensation_coins,notnull" json:"compensation_coins"`
	OTP                string          `bun:"otp" json:"-"`
	CreatedAt          time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a *Appointment) Tier() Tier {
	return ParseTier(a.TierLabel)
}

func (a *Appointment) Priority() float64 {
	return Priority(a.TierLabel, a.IsOffline)
}

// HasCustomer reports whether the appointment belongs to a registered customer.
func (a *Appointment) HasCustomer() bool {
	return a.CustomerID != nil && *a.CustomerID != ""
}

func (a *Appointment) IsCustomer(id string) bool {
	return a.HasCustomer() && *a.CustomerID == id
}

// Displaced reports whether the appointment is a reinstatable displacement victim.
func (a *Appointment) Displaced() bool {
	return a.Status == StatusCancelled && a.CancellationReason == DisplacementMarker
}

// Redacted returns a copy with the one-time code cleared.
func (a Appointment) Redacted() Appointment {
	a.OTP = ""
	return a
}

// StatusIn reports whether s is one of the given statuses.
func StatusIn(s Status, set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
