package domain

import "strings"

// Tier is a named service level. Lower values are higher priority.
type Tier int

const (
	TierBlackPremium Tier = 1
	TierPremium      Tier = 2
	TierBasic        Tier = 3
	TierFree         Tier = 4
	TierUnknown      Tier = 5
)

// offlinePenalty places walk-ins strictly behind online bookings of the same tier.
const offlinePenalty = 0.5

// ParseTier classifies a free-form tier label. Matching is a case-insensitive
// substring test in the order black, premium, basic, free. An empty label is
// Basic; any other unrecognized label is TierUnknown.
func ParseTier(label string) Tier {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "":
		return TierBasic
	case strings.Contains(l, "black"):
		return TierBlackPremium
	case strings.Contains(l, "premium"):
		return TierPremium
	case strings.Contains(l, "basic"):
		return TierBasic
	case strings.Contains(l, "free"):
		return TierFree
	default:
		return TierUnknown
	}
}

func (t Tier) String() string {
	switch t {
	case TierBlackPremium:
		return "Black Premium"
	case TierPremium:
		return "Premium"
	case TierBasic:
		return "Basic"
	case TierFree:
		return "Free"
	default:
		return "Unknown"
	}
}

// Compensation is the number of coins credited to a customer displaced from this tier.
func (t Tier) Compensation() int {
	switch t {
	case TierBasic:
		return 3
	case TierPremium:
		return 10
	case TierBlackPremium:
		return 15
	default:
		return 0
	}
}

// Displaceable reports whether appointments of this tier may be cancelled to
// make room for a Black Premium booking.
func (t Tier) Displaceable() bool {
	return t == TierFree || t == TierBasic || t == TierPremium
}

// Priority maps a tier label and the offline flag to a total-ordered value.
// Lower is higher priority.
func Priority(label string, offline bool) float64 {
	p := float64(ParseTier(label))
	if offline {
		p += offlinePenalty
	}
	return p
}

// DisplacementOrder is the order tier groups are scanned for a displacement victim.
var DisplacementOrder = []Tier{TierFree, TierBasic, TierPremium}
