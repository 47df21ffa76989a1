// Package expirer implements the failed-node expirer: the maintainer
// that recycles nodes which have sat in failed long enough, sorting them
// into a park (suspected hardware fault), retain-as-failed (blocked host
// park, or a high fail count in a production-grade environment), or
// recycle-as-dirty outcome.
package expirer

import (
	"context"
	"fmt"
	"time"

	"github.com/nodefailer/corectl/pkg/clock"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/metrics"
	"github.com/nodefailer/corectl/pkg/storage"
)

var logger = log.WithComponent("expirer")

// hardwareFaultFailCountThreshold is the fail count at or above which repeated
// re-failure is itself taken as hardware-fault evidence, per §4.5.
const hardwareFaultFailCountThreshold = 5

// Config carries the expirer's tunables.
type Config struct {
	// Interval is how often the maintainer scheduler calls Step.
	Interval time.Duration

	// FailTimeout is the minimum age a node must have spent in failed
	// before it becomes eligible for recycling.
	FailTimeout time.Duration

	// Environment is the process-wide deployment environment consulted
	// by the hardware-fault heuristic.
	Environment domain.Environment
}

// Expirer is the failed-node recycler. It satisfies the maintainer
// scheduler's Task contract: Name, Interval, Step.
type Expirer struct {
	cfg  Config
	repo storage.Repository
	clk  clock.Clock
}

// New creates an Expirer.
func New(cfg Config, repo storage.Repository, clk clock.Clock) *Expirer {
	return &Expirer{cfg: cfg, repo: repo, clk: clk}
}

// Name identifies this maintainer to the job-control gate and metrics.
func (e *Expirer) Name() string { return "expirer" }

// Interval reports the configured tick cadence.
func (e *Expirer) Interval() time.Duration { return e.cfg.Interval }

// Step runs one tick: select failed nodes old enough to expire, sort
// each into park/retain/recycle, then apply the recycle batch in a
// single setDirty call.
func (e *Expirer) Step(ctx context.Context) error {
	failed, err := e.repo.GetNodes(ctx, domain.StateFailed)
	if err != nil {
		return fmt.Errorf("list failed nodes: %w", err)
	}

	now := e.clk.Now()
	cutoff := now.Add(-e.cfg.FailTimeout)

	var recycleBatch []string
	for _, node := range failed {
		event, ok := node.History.Get(domain.EventFailed)
		if !ok || !event.Instant.Before(cutoff) {
			continue
		}
		e.expire(ctx, node, &recycleBatch)
	}

	if len(recycleBatch) == 0 {
		return nil
	}
	if err := e.repo.SetDirty(ctx, recycleBatch, domain.AgentSystem); err != nil {
		return fmt.Errorf("set dirty batch of %d nodes: %w", len(recycleBatch), err)
	}
	metrics.NodesDirtied.Add(float64(len(recycleBatch)))
	logger.Info().Int("count", len(recycleBatch)).Msg("recycled expired failed nodes")
	return nil
}

func (e *Expirer) expire(ctx context.Context, node *domain.Node, recycleBatch *[]string) {
	switch {
	case node.Status.HasHardwareFailure() || node.Status.HasHardwareDivergence():
		e.expireFaulted(ctx, node)
	case e.failCountIndicatesHardwareFault(node):
		// Fail count alone gates recycling, it does not trigger a park:
		// without an explicit hardware marker the node is simply left in
		// failed for an operator to look at.
	default:
		*recycleBatch = append(*recycleBatch, node.Hostname)
	}
}

// expireFaulted handles a node whose hardware is suspected faulty: it is
// parked directly, unless it is a host with any child not yet parked,
// in which case it is left in failed with a diagnostic log.
func (e *Expirer) expireFaulted(ctx context.Context, node *domain.Node) {
	if node.Type != domain.TypeHost {
		if _, err := e.repo.Park(ctx, node.Hostname, domain.AgentSystem, "HW failure/divergence"); err != nil {
			logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("park failed")
			return
		}
		metrics.NodesParked.Inc()
		return
	}

	children, err := e.repo.GetChildNodes(ctx, node.Hostname)
	if err != nil {
		logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("list children for park decision failed")
		return
	}

	var blocking []string
	for _, child := range children {
		if child.State != domain.StateParked {
			blocking = append(blocking, child.Hostname)
		}
	}
	if len(blocking) > 0 {
		logger.Info().
			Str("hostname", node.Hostname).
			Strs("blocking_children", blocking).
			Msg("host has hardware fault but children are not yet parked; leaving failed")
		return
	}

	if _, err := e.repo.Park(ctx, node.Hostname, domain.AgentSystem, "HW failure/divergence"); err != nil {
		logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("park failed")
		return
	}
	metrics.NodesParked.Inc()
}

// failCountIndicatesHardwareFault reports whether the node's fail count
// alone is evidence of a hardware fault: at least the threshold, in a
// production-grade environment, and for a non-container flavor (a
// container's fail count reflects application churn, not hardware).
func (e *Expirer) failCountIndicatesHardwareFault(node *domain.Node) bool {
	if node.Status.FailCount < hardwareFaultFailCountThreshold {
		return false
	}
	if !e.cfg.Environment.IsProduction() {
		return false
	}
	if node.Flavor.IsDockerContainer() {
		return false
	}
	return true
}
