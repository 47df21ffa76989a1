// Package orchestrator answers whether an application is currently
// permitted to have down nodes, the suspension oracle the failer
// consults before failing a long-down active node.
package orchestrator

import (
	"errors"
	"sync"
)

// InstanceStatus is the orchestrator's verdict on an application.
type InstanceStatus string

const (
	StatusNoRemarks   InstanceStatus = "no_remarks"
	StatusAllowedDown InstanceStatus = "allowed_to_be_down"
)

// ErrApplicationNotFound is returned when the orchestrator has no
// record of the given application. Per the suspension contract, callers
// must treat this as "not suspended" rather than propagate an error.
var ErrApplicationNotFound = errors.New("orchestrator: application not found")

// Orchestrator is the consumed collaborator contract.
type Orchestrator interface {
	// GetApplicationInstanceStatus returns the suspension status for
	// applicationID, or ErrApplicationNotFound.
	GetApplicationInstanceStatus(applicationID string) (InstanceStatus, error)
}

// InMemory is an Orchestrator backed by an explicit allow-list of
// suspended applications, suitable for the embedded daemon and tests.
// Applications never added are reported as ErrApplicationNotFound,
// which the failer treats as "not suspended" — an unknown application
// cannot veto a failure.
type InMemory struct {
	mu        sync.RWMutex
	suspended map[string]bool
}

// NewInMemory creates an Orchestrator with no known applications.
func NewInMemory() *InMemory {
	return &InMemory{suspended: make(map[string]bool)}
}

// Suspend marks applicationID as allowed to be down.
func (o *InMemory) Suspend(applicationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suspended[applicationID] = true
}

// Unsuspend marks applicationID as no longer allowed to be down (but
// still known).
func (o *InMemory) Unsuspend(applicationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suspended[applicationID] = false
}

func (o *InMemory) GetApplicationInstanceStatus(applicationID string) (InstanceStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	suspended, known := o.suspended[applicationID]
	if !known {
		return "", ErrApplicationNotFound
	}
	if suspended {
		return StatusAllowedDown, nil
	}
	return StatusNoRemarks, nil
}
