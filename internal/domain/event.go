package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a user-facing message addressed to a customer or provider.
type Notification struct {
	RecipientID   string    `json:"recipient_id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventType string

const (
	EventCancelled  EventType = "booking.cancelled"
	EventReinstated EventType = "booking.reinstated"
	EventDisplaced  EventType = "booking.displaced"
	EventExpired    EventType = "booking.expired"
)

// AppointmentEvent carries the full updated appointment to real-time listeners
// of its provider and customer.
type AppointmentEvent struct {
	Type        EventType   `json:"type"`
	Appointment Appointment `json:"appointment"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
