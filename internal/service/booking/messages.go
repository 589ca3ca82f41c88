package booking

import (
	"fmt"
	"time"

	"barberq/backend/internal/domain"
)

// when renders the appointment's date and clock time for message text.
func (s *Service) when(a domain.Appointment) (date, clock string) {
	d := a.Date.In(s.loc)
	date = d.Format("2 January 2006")
	h, m, ok := domain.ParseClock(a.Time)
	if !ok {
		return date, a.Time
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, s.loc)
	return date, at.Format("3:04 PM")
}

func customerLabel(a domain.Appointment, name string) string {
	if a.IsOffline {
		if a.CustomerName != "" {
			return a.CustomerName
		}
		return "a walk-in customer"
	}
	if name != "" {
		return name
	}
	return "a customer"
}

func providerLabel(p domain.Provider) string {
	if p.Name == "" {
		return "your provider"
	}
	return p.Name
}

func (s *Service) msgNewBooking(a domain.Appointment, who string, public bool) (string, string) {
	date, clock := s.when(a)
	title := "New Booking"
	if public {
		title = "New Public Booking"
	}
	return title, fmt.Sprintf("You have a new %s booking from %s on %s at %s.", a.Tier(), who, date, clock)
}

func (s *Service) msgDisplaced(p domain.Provider, coins int) (string, string) {
	return "Booking Cancelled", fmt.Sprintf(
		"Your booking with %s has been cancelled due to a higher priority booking. %d coins have been added to your account.",
		providerLabel(p), coins)
}

func (s *Service) msgReinstated(p domain.Provider, a domain.Appointment, coins int) (string, string) {
	date, clock := s.when(a)
	msg := fmt.Sprintf("Good news! Your booking with %s on %s at %s has been reinstated.", providerLabel(p), date, clock)
	if coins > 0 {
		msg += fmt.Sprintf(" The %d compensation coins have been deducted from your account.", coins)
	}
	return "Booking Reinstated", msg
}

func (s *Service) msgAccepted(p domain.Provider, a domain.Appointment) (string, string) {
	date, clock := s.when(a)
	return "Booking Accepted", fmt.Sprintf("Your booking with %s on %s at %s has been accepted.", providerLabel(p), date, clock)
}

func (s *Service) msgDeclined(p domain.Provider, a domain.Appointment) (string, string) {
	date, clock := s.when(a)
	return "Booking Declined", fmt.Sprintf("Your booking with %s on %s at %s has been declined.", providerLabel(p), date, clock)
}

func (s *Service) msgCancelled(a domain.Appointment, who string) (string, string) {
	date, clock := s.when(a)
	return "Booking Cancelled", fmt.Sprintf("The booking for %s on %s at %s has been cancelled by the customer.", who, date, clock)
}

func (s *Service) msgStarted(p domain.Provider, a domain.Appointment) (string, string) {
	date, clock := s.when(a)
	return "Appointment Started", fmt.Sprintf("Your appointment with %s on %s at %s has started.", providerLabel(p), date, clock)
}

func (s *Service) msgCompletedCustomer(p domain.Provider, a domain.Appointment, bonus int, completed int) (string, string) {
	date, clock := s.when(a)
	msg := fmt.Sprintf("Your appointment with %s on %s at %s has been completed. 1 coin has been added to your account.",
		providerLabel(p), date, clock)
	if bonus > 0 {
		msg += fmt.Sprintf(" Loyalty bonus: %d extra coins for completing %d bookings!", bonus, completed)
	}
	return "Booking Completed", msg
}

func (s *Service) msgCompletedProvider(a domain.Appointment, who string) (string, string) {
	date, clock := s.when(a)
	return "Booking Completed", fmt.Sprintf("Booking for %s on %s at %s has been completed.", who, date, clock)
}

func (s *Service) msgExpired(a domain.Appointment) (string, string) {
	date, clock := s.when(a)
	return "Booking Expired", fmt.Sprintf("The booking on %s at %s was cancelled because payment was not received in time.", date, clock)
}
