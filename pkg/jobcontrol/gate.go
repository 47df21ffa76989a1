// Package jobcontrol provides the gate maintainers consult before each
// tick: when closed for a named job, that tick is a no-op, but the next
// tick is still scheduled on the original cadence (no catch-up).
package jobcontrol

import "sync"

// Gate reports whether a named job is permitted to run this tick.
type Gate interface {
	IsRunnable(job string) bool
}

// AlwaysOpen never blocks any job; it is the default in the absence of
// an operator override.
type AlwaysOpen struct{}

// IsRunnable always returns true.
func (AlwaysOpen) IsRunnable(string) bool { return true }

// MapGate is an operator-controlled gate: jobs are open unless explicitly
// marked closed.
type MapGate struct {
	mu     sync.RWMutex
	closed map[string]bool
}

// NewMapGate creates a gate with every job initially open.
func NewMapGate() *MapGate {
	return &MapGate{closed: make(map[string]bool)}
}

// IsRunnable reports whether job is not closed.
func (g *MapGate) IsRunnable(job string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.closed[job]
}

// Close marks job as not runnable until reopened.
func (g *MapGate) Close(job string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed[job] = true
}

// Open marks job as runnable again.
func (g *MapGate) Open(job string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.closed, job)
}
