// Package scheduler provides the capacity check the deployer consults
// before promising a deployment handle: whether enough ready, unallocated
// nodes of the application's required type exist to absorb a replacement
// allocation. It generalizes the example fleet scheduler's
// filterReadyWorkers/selectNode pair from "pick a node to place a task
// on" to "confirm at least one placement is possible right now".
package scheduler

import (
	"context"

	"github.com/nodefailer/corectl/pkg/domain"
)

// NodeLister is the narrow repository slice the capacity checker needs.
type NodeLister interface {
	GetNodesByType(ctx context.Context, t domain.Type, state domain.State) ([]*domain.Node, error)
}

// CapacityChecker reports whether at least one ready, unallocated node
// of type t currently exists.
type CapacityChecker struct {
	repo NodeLister
}

// NewCapacityChecker creates a CapacityChecker over repo.
func NewCapacityChecker(repo NodeLister) *CapacityChecker {
	return &CapacityChecker{repo: repo}
}

// HasCapacity reports whether a node of type t is ready to place a
// replacement allocation on. Matches scheduler.filterReadyWorkers'
// ready-and-correct-role filter, generalized from a fixed worker role
// to any domain.Type.
func (c *CapacityChecker) HasCapacity(ctx context.Context, t domain.Type) (bool, error) {
	nodes, err := c.repo.GetNodesByType(ctx, t, domain.StateReady)
	if err != nil {
		return false, err
	}
	return SelectLeastLoaded(nodes) != nil, nil
}

// SelectLeastLoaded picks the node with no allocation from nodes,
// generalizing selectNode's fewest-tasks tie-break: since every node
// passed in is already filtered to domain.StateReady, "least loaded"
// reduces to "unallocated", but the shape is kept as a selection
// function so a future capacity dimension (CPU, memory) can be added
// without changing callers.
func SelectLeastLoaded(nodes []*domain.Node) *domain.Node {
	for _, n := range nodes {
		if n.Allocation == nil {
			return n
		}
	}
	return nil
}
