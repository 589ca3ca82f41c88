package bookingv1

import "github.com/shopspring/decimal"

type Service struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Booking is the wire form of an appointment. Otp is only set on the response
// to the customer's own CreateBooking.
type Booking struct {
	ID                 string          `json:"id"`
	ProviderID         string          `json:"provider_id"`
	CustomerID         string          `json:"customer_id,omitempty"`
	IsOffline          bool            `json:"is_offline"`
	CustomerName       string          `json:"customer_name,omitempty"`
	CustomerPhone      string          `json:"customer_phone,omitempty"`
	Date               string          `json:"date"`
	Time               string          `json:"time"`
	Tier               string          `json:"tier"`
	Services           []Service       `json:"services,omitempty"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"payment_status"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	DisplacedBy        string          `json:"displaced_by,omitempty"`
	CompensationCoins  int32           `json:"compensation_coins,omitempty"`
	Otp                string          `json:"otp,omitempty"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at"`
}

type CreateBookingRequest struct {
	ProviderID    string          `json:"provider_id"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Tier          string          `json:"tier"`
	Services      []Service       `json:"services,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	IsOffline     bool            `json:"is_offline"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
}

type CreatePublicBookingRequest struct {
	ProviderID    string          `json:"provider_id"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Tier          string          `json:"tier"`
	Services      []Service       `json:"services,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
}

// BookingRequest addresses one appointment.
type BookingRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type BookingResponse struct {
	Booking *Booking `json:"booking"`
}

type OtpRequest struct {
	AppointmentID string `json:"appointment_id"`
	Otp           string `json:"otp"`
}

type VerifyOtpResponse struct {
	Verified bool `json:"verified"`
}

type DayRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type Availability struct {
	Type  string `json:"type"`
	Count int32  `json:"count"`
}

type AvailabilityResponse struct {
	Availability *Availability `json:"availability"`
}

type AvailabilityBatchRequest struct {
	ProviderIDs []string `json:"provider_ids"`
	Date        string   `json:"date"`
}

type AvailabilityBatchResponse struct {
	Availability map[string]*Availability `json:"availability"`
}

type QueueResponse struct {
	Bookings []*Booking `json:"bookings"`
}

type DailyCountsResponse struct {
	Counts map[string]int32 `json:"counts"`
}

type SetCapacityRequest struct {
	Capacity int32 `json:"capacity"`
}

type SetCapacityResponse struct {
	ProviderID string `json:"provider_id"`
	Capacity   int32  `json:"capacity"`
}
