// Package storage provides the node repository: a durable, lockable store
// for node records. It is the single source of truth the maintenance core
// (pkg/failer, pkg/expirer) reads and mutates every tick.
package storage

import (
	"context"

	"github.com/nodefailer/corectl/pkg/domain"
)

// Locker provides the repository's two locking primitives: one lock per
// application id, and one global lock for unallocated (not-yet-assigned)
// nodes. Read-modify-write on node records must re-read inside the lock.
type Locker interface {
	// LockApplication acquires the lock for applicationID and returns a
	// release function the caller must invoke exactly once.
	LockApplication(ctx context.Context, applicationID string) (release func(), err error)

	// LockUnallocated acquires the single global unallocated-nodes lock.
	LockUnallocated(ctx context.Context) (release func(), err error)
}

// Repository is the node repository's consumed contract, per the
// operations table in the external-interfaces section of this core's
// specification: getNodes, getChildNodes, write, fail, park, setDirty,
// reactivate, removeRecursively, plus the two locks above.
type Repository interface {
	Locker

	// GetNodes returns nodes in the given state, or every node if state
	// is the zero value.
	GetNodes(ctx context.Context, state domain.State) ([]*domain.Node, error)

	// GetNodesByType returns nodes of the given type and state.
	GetNodesByType(ctx context.Context, t domain.Type, state domain.State) ([]*domain.Node, error)

	// GetNode returns a single node by hostname, or ErrNotFound.
	GetNode(ctx context.Context, hostname string) (*domain.Node, error)

	// GetChildNodes returns the child container nodes of a host.
	GetChildNodes(ctx context.Context, parentHostname string) ([]*domain.Node, error)

	// Write persists node as-is (upsert), used for non-transitional
	// bookkeeping writes such as the requested/down history updates.
	Write(ctx context.Context, node *domain.Node) error

	// Fail transitions hostname to failed, stamping a failed history
	// event and incrementing the node's fail count. Calling Fail on an
	// already-failed node re-stamps the failed event and still
	// increments the count. The reason is not stored on the node record.
	Fail(ctx context.Context, hostname, agent, reason string) (*domain.Node, error)

	// Park transitions hostname to parked.
	Park(ctx context.Context, hostname, agent, reason string) (*domain.Node, error)

	// SetDirty transitions every named hostname to dirty in one call.
	SetDirty(ctx context.Context, hostnames []string, agent string) error

	// Reactivate rolls a node back to active, used by the cascaded
	// fail-active protocol's rollback path.
	Reactivate(ctx context.Context, hostname, agent string) (*domain.Node, error)

	// RemoveRecursively deletes a host and all its child nodes.
	RemoveRecursively(ctx context.Context, hostname string) error

	// Close releases underlying resources.
	Close() error
}
