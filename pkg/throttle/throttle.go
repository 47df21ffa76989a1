// Package throttle implements the rolling-window fail-rate limiter that
// guards the failer against cascading a bad release or a broken monitor
// into a fleet-wide outage. It holds no state of its own: every decision
// is re-derived from the repository's node population and history, so
// throttling survives process restarts.
package throttle

import (
	"time"

	"github.com/nodefailer/corectl/pkg/domain"
)

// Budget returns the maximum number of non-container nodes the policy
// permits in the failed state within the rolling window, given the
// current population. Budget does not special-case a disabled policy
// (domain.Disabled yields 0); IsThrottled checks policy.IsDisabled()
// before consulting it. Budget is exposed for metrics.
func Budget(policy domain.ThrottlePolicy, population []*domain.Node) int {
	n := nonContainerCount(population)
	budget := int(float64(n) * policy.FractionAllowedToFail)
	if policy.MinimumAllowedToFail > budget {
		budget = policy.MinimumAllowedToFail
	}
	return budget
}

// IsThrottled decides whether another fail is allowed right now, given
// the policy, the full current node population, and the current instant.
func IsThrottled(policy domain.ThrottlePolicy, population []*domain.Node, now time.Time) bool {
	if policy.IsDisabled() {
		return false
	}

	budget := Budget(policy, population)
	recent := recentlyFailed(policy, population, now)
	return recent >= budget
}

func nonContainerCount(population []*domain.Node) int {
	n := 0
	for _, node := range population {
		if node.Flavor.IsDockerContainer() {
			continue
		}
		n++
	}
	return n
}

func recentlyFailed(policy domain.ThrottlePolicy, population []*domain.Node, now time.Time) int {
	cutoff := now.Add(-policy.ThrottleWindow)
	count := 0
	for _, node := range population {
		if node.Flavor.IsDockerContainer() {
			continue
		}
		event, ok := node.History.Get(domain.EventFailed)
		if !ok {
			continue
		}
		if event.Instant.After(cutoff) {
			count++
		}
	}
	return count
}
