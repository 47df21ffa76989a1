package domain

import "time"

// ThrottlePolicy bounds the rate at which the failer may drive nodes to
// failed within a rolling window.
type ThrottlePolicy struct {
	Name                  string
	ThrottleWindow        time.Duration
	FractionAllowedToFail float64
	MinimumAllowedToFail  int
}

// Disabled is equivalent to {0,0,0} and short-circuits the throttle
// engine to "never throttle".
var Disabled = ThrottlePolicy{Name: "disabled"}

// DefaultProductionPolicy is the recommended policy for a production
// deployment: at most 1% of the non-container fleet, floor 2, per day.
var DefaultProductionPolicy = ThrottlePolicy{
	Name:                  "production",
	ThrottleWindow:        24 * time.Hour,
	FractionAllowedToFail: 0.01,
	MinimumAllowedToFail:  2,
}

// IsDisabled reports whether this policy never throttles.
func (p ThrottlePolicy) IsDisabled() bool {
	return p.Name == "disabled" || (p.ThrottleWindow == 0 && p.FractionAllowedToFail == 0 && p.MinimumAllowedToFail == 0)
}
