package domain

import (
	"strings"
	"time"
)

const dayKeyLayout = "2006-01-02"

// DayWindow is the closed-open interval [Start, End) of one calendar day in a
// provider's local time.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// DayOf returns the calendar day containing t in loc.
func DayOf(t time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return DayWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// ParseDay parses a YYYY-MM-DD key into the day window in loc.
func ParseDay(key string, loc *time.Location) (DayWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dayKeyLayout, key, loc)
	if err != nil {
		return DayWindow{}, err
	}
	return DayOf(t, loc), nil
}

func (d DayWindow) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Key is the YYYY-MM-DD form of the day, used for lock and cache keys.
func (d DayWindow) Key() string {
	return d.Start.Format(dayKeyLayout)
}

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "03:04 PM", "15:04:05"}

// ParseClock parses a clock time such as "14:30" or "2:30 pm".
func ParseClock(s string) (hour, minute int, ok bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}

// AvailabilityType tells a caller how a booking could still be admitted.
type AvailabilityType string

const (
	// AvailabilityFree means free capacity remains; Count is the number of slots left.
	AvailabilityFree AvailabilityType = "free"
	// AvailabilityPremium means the day is full; Count is how many appointments a
	// Black Premium booking could still displace.
	AvailabilityPremium AvailabilityType = "premium"
)

type Availability struct {
	Type  AvailabilityType `json:"type"`
	Count int              `json:"count"`
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleSystem   Role = "system"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
	Name string
}

// SystemActor is used by background jobs.
var SystemActor = Actor{ID: "system", Role: RoleSystem, Name: "system"}
