// Package deploy implements the deployer collaborator the cascaded
// fail-active protocol drives: given an application id, it produces a
// handle that Activate()s the application's replacement allocation once
// the failer has removed the failing node from service.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/metrics"
	"github.com/nodefailer/corectl/pkg/scheduler"
	"github.com/sony/gobreaker/v2"
)

var logger = log.WithComponent("deploy")

// ErrDeploymentOwnedElsewhere is returned by DeployFromLocalActive when
// another control-plane replica already holds the deployment for this
// application; the caller must abort its fail-active attempt and let
// that replica proceed.
var ErrDeploymentOwnedElsewhere = errors.New("deploy: deployment owned by another replica")

// ErrNoHandleAvailable is returned by DeployFromLocalActive when no
// deployment can be offered right now (e.g. insufficient ready
// capacity). Per §4.4 step 1, the caller's response to both this and
// ErrDeploymentOwnedElsewhere is identical: abort, return false, and
// retry on the next tick.
var ErrNoHandleAvailable = errors.New("deploy: no handle available")

// Handle is an in-flight deployment on which Activate may be invoked
// exactly once.
type Handle struct {
	ID            string
	ApplicationID string
	deployer      *Deployer
	deadline      time.Time
}

// Activate attempts to bring the application's replacement allocation
// into service. It fails if the deadline has passed or if the Activator
// returns an error; capacity is checked only when the handle is created,
// not again here.
func (h *Handle) Activate(ctx context.Context) error {
	_, err := h.deployer.breaker.Execute(func() (interface{}, error) {
		if time.Now().After(h.deadline) {
			return nil, fmt.Errorf("deploy: handle %s for %s expired", h.ID, h.ApplicationID)
		}
		return nil, h.deployer.activate(ctx, h)
	})
	metrics.BreakerState.WithLabelValues("deployer").Set(breakerStateValue(h.deployer.breaker.State()))
	return err
}

// breakerStateValue maps a gobreaker state to the BreakerState gauge's
// documented scale (0=closed, 0.5=half-open, 1=open).
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return 0
	}
}

// CapacityChecker reports whether enough ready capacity exists to absorb
// one more allocation for an application, generalizing the scheduler's
// round-robin node-selection into a yes/no admission check the deployer
// consults before promising activation.
type CapacityChecker interface {
	HasCapacityFor(applicationID string) (bool, error)
}

// Activator performs the actual replacement-allocation work once
// capacity has been confirmed. A real deployment wires this to whatever
// external redeployment algorithm the surrounding system owns; this
// core's non-goals explicitly exclude specifying that algorithm.
type Activator interface {
	Activate(ctx context.Context, applicationID string) error
}

// Deployer is the consumed collaborator contract, §4.4 and §6.
type Deployer struct {
	capacity  CapacityChecker
	activator Activator
	breaker   *gobreaker.CircuitBreaker[interface{}]

	owned map[string]string // applicationID -> handle ID, single-replica bookkeeping
}

// NewDeployer creates a Deployer backed by capacity and activator,
// wrapped in a circuit breaker so a stuck activator fails fast instead
// of burning a full tick's timeout budget per candidate.
func NewDeployer(capacity CapacityChecker, activator Activator) *Deployer {
	settings := gobreaker.Settings{
		Name:        "deployer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Deployer{
		capacity:  capacity,
		activator: activator,
		breaker:   gobreaker.NewCircuitBreaker[interface{}](settings),
		owned:     make(map[string]string),
	}
}

// DeployFromLocalActive asks for a deployment handle for applicationID,
// valid for timeout. Returns ErrDeploymentOwnedElsewhere if another
// replica already owns this application's deployment; per §4.4 step 1,
// the caller must then abort and let that replica act.
func (d *Deployer) DeployFromLocalActive(ctx context.Context, applicationID string, timeout time.Duration) (*Handle, error) {
	if _, owned := d.owned[applicationID]; owned {
		return nil, ErrDeploymentOwnedElsewhere
	}

	ok, err := d.capacity.HasCapacityFor(applicationID)
	if err != nil {
		return nil, fmt.Errorf("check capacity for %s: %w", applicationID, err)
	}
	if !ok {
		return nil, ErrNoHandleAvailable
	}

	handle := &Handle{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		deployer:      d,
		deadline:      time.Now().Add(timeout),
	}
	d.owned[applicationID] = handle.ID
	return handle, nil
}

func (d *Deployer) activate(ctx context.Context, h *Handle) error {
	defer delete(d.owned, h.ApplicationID)

	if err := d.activator.Activate(ctx, h.ApplicationID); err != nil {
		logger.Warn().Str("application_id", h.ApplicationID).Err(err).Msg("activation failed")
		return fmt.Errorf("activate %s: %w", h.ApplicationID, err)
	}
	return nil
}

// SchedulerCapacityChecker is a CapacityChecker backed by
// pkg/scheduler's least-loaded-node selection: capacity exists for an
// application iff scheduler.SelectLeastLoaded finds an unallocated,
// ready node of nodeType. This core has no per-application node-type
// registry, so nodeType is fixed at construction time rather than
// looked up per applicationID.
type SchedulerCapacityChecker struct {
	checker  *scheduler.CapacityChecker
	nodeType domain.Type
}

// NewSchedulerCapacityChecker creates a SchedulerCapacityChecker over
// repo, admitting deployments for nodes of nodeType.
func NewSchedulerCapacityChecker(repo scheduler.NodeLister, nodeType domain.Type) *SchedulerCapacityChecker {
	return &SchedulerCapacityChecker{checker: scheduler.NewCapacityChecker(repo), nodeType: nodeType}
}

func (c *SchedulerCapacityChecker) HasCapacityFor(applicationID string) (bool, error) {
	return c.checker.HasCapacity(context.Background(), c.nodeType)
}
