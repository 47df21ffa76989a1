// Package liveness tracks the most recent request instant observed from
// each host, the signal the failer uses to decide whether a ready node
// is still checking in.
package liveness

import (
	"sync"
	"time"
)

// Tracker answers "when did we last hear from this host".
type Tracker interface {
	// LastRequestFrom returns the instant of the most recent request
	// observed from hostname, and false if none has ever been observed.
	LastRequestFrom(hostname string) (time.Time, bool)

	// Record notes a request observed from hostname at instant. Instants
	// older than the one already recorded for hostname are ignored: the
	// signal is monotonic non-decreasing per host.
	Record(hostname string, instant time.Time)
}

// InMemory is a Tracker backed by a map, suitable for the embedded
// single-process daemon and for tests. A production deployment that
// terminates heartbeats on a dedicated fleet of edge proxies would
// implement Tracker against whatever store those proxies write to;
// this core only depends on the interface.
type InMemory struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewInMemory creates an empty InMemory tracker.
func NewInMemory() *InMemory {
	return &InMemory{last: make(map[string]time.Time)}
}

func (t *InMemory) LastRequestFrom(hostname string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	instant, ok := t.last[hostname]
	return instant, ok
}

func (t *InMemory) Record(hostname string, instant time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.last[hostname]; !ok || instant.After(current) {
		t.last[hostname] = instant
	}
}
