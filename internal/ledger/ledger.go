// Package ledger is the per-provider, per-day view of admitted appointments
// used for admission and guard decisions.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
)

// View is a snapshot of one provider's day. It is only as fresh as the read
// that built it; inside a slot transaction it is authoritative.
type View struct {
	Provider domain.Provider
	Day      domain.DayWindow

	appointments    []domain.Appointment
	defaultCapacity int
}

// Load reads the provider and every appointment of the day once.
// defaultCapacity applies when the provider has no capacity configured.
func Load(ctx context.Context, r store.SlotReader, providerID string, day domain.DayWindow, defaultCapacity int) (*View, error) {
	provider, err := r.GetProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	appts, err := r.ListDay(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("list day: %w", err)
	}
	return &View{
		Provider:        provider,
		Day:             day,
		appointments:    appts,
		defaultCapacity: defaultCapacity,
	}, nil
}

func (v *View) Capacity() int {
	if v.Provider.MaxAppointmentsPerDay > 0 {
		return v.Provider.MaxAppointmentsPerDay
	}
	return v.defaultCapacity
}

// AdmittedCount counts appointments that are not cancelled.
func (v *View) AdmittedCount() int {
	n := 0
	for _, a := range v.appointments {
		if a.Status != domain.StatusCancelled {
			n++
		}
	}
	return n
}

// RemainingCapacity is capacity minus admitted, clamped to [0, capacity].
func (v *View) RemainingCapacity() int {
	capacity := v.Capacity()
	remaining := capacity - v.AdmittedCount()
	if remaining < 0 {
		return 0
	}
	if remaining > capacity {
		return capacity
	}
	return remaining
}

func (v *View) Full() bool {
	return v.AdmittedCount() >= v.Capacity()
}

// DisplaceableCandidates lists pending and confirmed appointments that a Black
// Premium booking may displace, Free first, then Basic, then Premium. Within a
// tier the most recently created comes first. The offline flag does not
// affect the order.
func (v *View) DisplaceableCandidates() []domain.Appointment {
	var out []domain.Appointment
	for _, tier := range domain.DisplacementOrder {
		var group []domain.Appointment
		for _, a := range v.appointments {
			if a.Tier() != tier {
				continue
			}
			if !domain.StatusIn(a.Status, domain.StatusPending, domain.StatusConfirmed) {
				continue
			}
			group = append(group, a)
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})
		out = append(out, group...)
	}
	return out
}

// NextVictim is the first displaceable candidate.
func (v *View) NextVictim() (domain.Appointment, bool) {
	candidates := v.DisplaceableCandidates()
	if len(candidates) == 0 {
		return domain.Appointment{}, false
	}
	return candidates[0], true
}

// ReplaceableCount counts Free, Basic and Premium appointments that are
// pending or confirmed, plus started ones when includeStarted is set.
func (v *View) ReplaceableCount(includeStarted bool) int {
	statuses := []domain.Status{domain.StatusPending, domain.StatusConfirmed}
	if includeStarted {
		statuses = append(statuses, domain.StatusStarted)
	}
	n := 0
	for _, a := range v.appointments {
		if a.Tier().Displaceable() && domain.StatusIn(a.Status, statuses...) {
			n++
		}
	}
	return n
}

// BlockingHigherPriorityUnpaid finds another appointment of the day with
// pending payment, a status in statuses and a strictly higher priority than
// subject.
func (v *View) BlockingHigherPriorityUnpaid(subject domain.Appointment, statuses ...domain.Status) (domain.Appointment, bool) {
	p := subject.Priority()
	for _, a := range v.appointments {
		if a.ID == subject.ID {
			continue
		}
		if a.PaymentStatus != domain.PaymentPending || !domain.StatusIn(a.Status, statuses...) {
			continue
		}
		if a.Priority() < p {
			return a, true
		}
	}
	return domain.Appointment{}, false
}

// Availability reports free slots, or when the day is full, how many
// appointments a Black Premium booking could still displace.
func (v *View) Availability() domain.Availability {
	if !v.Full() {
		return domain.Availability{Type: domain.AvailabilityFree, Count: v.RemainingCapacity()}
	}
	return domain.Availability{Type: domain.AvailabilityPremium, Count: v.ReplaceableCount(false)}
}

// Queue orders the admitted appointments by priority, clock time and creation time.
func (v *View) Queue() []domain.Appointment {
	var out []domain.Appointment
	for _, a := range v.appointments {
		if a.Status != domain.StatusCancelled {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Priority(), out[j].Priority()
		if pi != pj {
			return pi < pj
		}
		ci, cj := clockMinutes(out[i].Time), clockMinutes(out[j].Time)
		if ci != cj {
			return ci < cj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountsByTier counts admitted appointments per tier name.
func (v *View) CountsByTier() map[string]int {
	counts := map[string]int{
		domain.TierBlackPremium.String(): 0,
		domain.TierPremium.String():      0,
		domain.TierBasic.String():        0,
		domain.TierFree.String():         0,
	}
	for _, a := range v.appointments {
		if a.Status == domain.StatusCancelled {
			continue
		}
		counts[a.Tier().String()]++
	}
	return counts
}

// clockMinutes is minutes after midnight. Unparseable values sort last.
func clockMinutes(s string) int {
	h, m, ok := domain.ParseClock(s)
	if !ok {
		return 24 * 60
	}
	return h*60 + m
}
