// Package failer implements the node failer: the decision loop that walks
// the node repository each tick, drives liveness bookkeeping, fails dead
// or faulted ready nodes, tracks down/up history on active nodes, and
// hands long-down active nodes to the cascaded fail-active protocol.
package failer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nodefailer/corectl/pkg/clock"
	"github.com/nodefailer/corectl/pkg/deploy"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/liveness"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/metrics"
	"github.com/nodefailer/corectl/pkg/orchestrator"
	"github.com/nodefailer/corectl/pkg/servicemonitor"
	"github.com/nodefailer/corectl/pkg/storage"
	"github.com/nodefailer/corectl/pkg/throttle"
)

var logger = log.WithComponent("failer")

// Config carries the failer's tunables, per the core's configuration
// surface.
type Config struct {
	// Interval is how often the maintainer scheduler calls Step. Must
	// satisfy Interval <= min(DownTimeLimit/2, 5*time.Minute).
	Interval time.Duration

	// DownTimeLimit is the grace period between a node's first observed
	// down event and it becoming eligible for destructive failing.
	DownTimeLimit time.Duration

	// NodeRequestInterval is the expected heartbeat cadence; recommended
	// default 10 minutes.
	NodeRequestInterval time.Duration

	// ThrottlePolicy bounds the fail rate. domain.Disabled turns the
	// throttle engine off entirely.
	ThrottlePolicy domain.ThrottlePolicy
}

func (c Config) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("failer: interval must be positive")
	}
	limit := c.DownTimeLimit / 2
	if 5*time.Minute < limit {
		limit = 5 * time.Minute
	}
	if c.Interval > limit {
		return fmt.Errorf("failer: interval %s exceeds min(downTimeLimit/2, 5m) = %s", c.Interval, limit)
	}
	if c.NodeRequestInterval <= 0 {
		return fmt.Errorf("failer: nodeRequestInterval must be positive")
	}
	return nil
}

// Failer is the node-failure decision loop. It satisfies the maintainer
// scheduler's Task contract: Name, Interval, Step.
type Failer struct {
	cfg Config

	repo         storage.Repository
	liveness     liveness.Tracker
	monitor      servicemonitor.Monitor
	orchestrator orchestrator.Orchestrator
	deployer     *deploy.Deployer
	clk          clock.Clock

	constructedAt time.Time
}

// New creates a Failer. Returns an error if cfg's interval does not
// satisfy the maintainer scheduler's bound relative to DownTimeLimit.
func New(
	cfg Config,
	repo storage.Repository,
	liveness liveness.Tracker,
	monitor servicemonitor.Monitor,
	orch orchestrator.Orchestrator,
	deployer *deploy.Deployer,
	clk clock.Clock,
) (*Failer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Failer{
		cfg:           cfg,
		repo:          repo,
		liveness:      liveness,
		monitor:       monitor,
		orchestrator:  orch,
		deployer:      deployer,
		clk:           clk,
		constructedAt: clk.Now(),
	}, nil
}

// Name identifies this maintainer to the job-control gate and metrics.
func (f *Failer) Name() string { return "failer" }

// Interval reports the configured tick cadence.
func (f *Failer) Interval() time.Duration { return f.cfg.Interval }

// Step runs one tick: phases A through D in order. Per-candidate errors
// are logged and skipped; a phase that fails as a whole is logged and the
// remaining phases still run. Step always returns nil.
func (f *Failer) Step(ctx context.Context) error {
	now := f.clk.Now()

	if err := f.phaseA(ctx, now); err != nil {
		logger.Error().Err(err).Msg("phase A liveness bookkeeping failed")
	}
	if err := f.phaseB(ctx, now); err != nil {
		logger.Error().Err(err).Msg("phase B fail dead/faulted ready nodes failed")
	}
	if err := f.phaseC(ctx); err != nil {
		logger.Error().Err(err).Msg("phase C down/up history update failed")
	}
	if err := f.phaseD(ctx, now); err != nil {
		logger.Error().Err(err).Msg("phase D fail long-down active nodes failed")
	}
	return nil
}

// phaseA writes a fresh requested event for every ready node the
// liveness tracker has heard from more recently than its recorded one.
func (f *Failer) phaseA(ctx context.Context, now time.Time) error {
	release, err := f.repo.LockUnallocated(ctx)
	if err != nil {
		return fmt.Errorf("lock unallocated: %w", err)
	}
	defer release()

	ready, err := f.repo.GetNodes(ctx, domain.StateReady)
	if err != nil {
		return fmt.Errorf("list ready nodes: %w", err)
	}

	for _, node := range ready {
		instant, ok := f.liveness.LastRequestFrom(node.Hostname)
		if !ok {
			continue
		}
		existing, hasExisting := node.History.Get(domain.EventRequested)
		if hasExisting && !instant.After(existing.Instant) {
			continue
		}
		updated := node.Clone()
		updated.History = updated.History.With(domain.EventRequested, domain.AgentSystem, instant)
		if err := f.repo.Write(ctx, updated); err != nil {
			logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("write requested event failed")
		}
	}
	return nil
}

// phaseB fails ready nodes that have gone dead (no recent requests) or
// that carry a hardware fault/divergence marker.
func (f *Failer) phaseB(ctx context.Context, now time.Time) error {
	// Dead-node detection waits 2*NodeRequestInterval after construction
	// so heartbeats can re-accumulate; the hardware checks always run.
	inGrace := now.Sub(f.constructedAt) < 2*f.cfg.NodeRequestInterval

	ready, err := f.repo.GetNodes(ctx, domain.StateReady)
	if err != nil {
		return fmt.Errorf("list ready nodes: %w", err)
	}

	cutoff := now.Add(-f.cfg.DownTimeLimit).Add(-f.cfg.NodeRequestInterval)

	for _, node := range ready {
		if inGrace || node.Flavor.IsDockerContainer() || node.Type == domain.TypeHost {
			continue
		}
		readied, ok := node.History.Get(domain.EventReadied)
		if !ok || readied.Instant.After(cutoff) {
			continue
		}
		if requested, ok := node.History.Get(domain.EventRequested); ok && requested.Instant.After(cutoff) {
			continue
		}
		f.tryFail(ctx, node, ReasonNotReceivingRequests)
	}

	for _, node := range ready {
		if node.Status.HasHardwareFailure() {
			f.tryFail(ctx, node, ReasonHardwareFailure)
		}
		if node.Status.HasHardwareDivergence() {
			f.tryFail(ctx, node, ReasonHardwareDivergence)
		}
	}
	return nil
}

// tryFail fails node for reason unless the throttle engine vetoes it.
func (f *Failer) tryFail(ctx context.Context, node *domain.Node, reason string) {
	throttled, err := f.throttled(ctx)
	if err != nil {
		logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("throttle check failed, skipping candidate")
		return
	}
	if throttled {
		metrics.ThrottleTripped.WithLabelValues(f.cfg.ThrottlePolicy.Name).Inc()
		logger.Info().Str("hostname", node.Hostname).Str("policy", f.cfg.ThrottlePolicy.Name).Msg("fail suppressed by throttle")
		return
	}
	if _, err := f.repo.Fail(ctx, node.Hostname, domain.AgentSystem, reason); err != nil {
		logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("fail transition failed")
		return
	}
	metrics.NodesFailed.WithLabelValues(reason).Inc()
	logger.Info().Str("hostname", node.Hostname).Str("reason", reason).Msg("node failed")
}

// throttled re-derives the throttle decision from the live repository
// population, per the engine's statelessness contract. A repository
// error is treated conservatively as "throttled" rather than "not
// throttled", since the alternative risks an unbounded fail storm.
func (f *Failer) throttled(ctx context.Context) (bool, error) {
	if f.cfg.ThrottlePolicy.IsDisabled() {
		return false, nil
	}
	population, err := f.repo.GetNodes(ctx, "")
	if err != nil {
		return true, fmt.Errorf("list population: %w", err)
	}
	metrics.ThrottleBudget.WithLabelValues(f.cfg.ThrottlePolicy.Name).Set(float64(throttle.Budget(f.cfg.ThrottlePolicy, population)))
	return throttle.IsThrottled(f.cfg.ThrottlePolicy, population, f.clk.Now()), nil
}

// phaseC updates down/up history on active nodes from the service
// monitor's current view.
func (f *Failer) phaseC(ctx context.Context) error {
	instances, err := f.monitor.GetAllApplicationInstances()
	if err != nil {
		return fmt.Errorf("fetch application instances: %w", err)
	}
	known := f.monitor.StatusIsKnown()

	for _, app := range instances {
		for _, cluster := range app.Clusters {
			for _, instance := range cluster.Instances {
				status := instance.Status
				if !known {
					status = servicemonitor.StatusUnknown
				}
				f.reconcileDownHistory(ctx, instance.HostName, status)
			}
		}
	}
	return nil
}

func (f *Failer) reconcileDownHistory(ctx context.Context, hostname string, status servicemonitor.ServiceStatus) {
	if status == servicemonitor.StatusUnknown {
		return
	}

	node, err := f.repo.GetNode(ctx, hostname)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Str("hostname", hostname).Err(err).Msg("lookup node for down-history update failed")
		}
		return
	}
	if node.State != domain.StateActive {
		return
	}

	switch status {
	case servicemonitor.StatusDown:
		if node.History.Has(domain.EventDown) {
			return
		}
		f.markDown(ctx, hostname)
	case servicemonitor.StatusUp:
		if !node.History.Has(domain.EventDown) {
			return
		}
		f.clearDown(ctx, hostname)
	}
}

func (f *Failer) markDown(ctx context.Context, hostname string) {
	f.withApplicationLock(ctx, hostname, func(node *domain.Node) *domain.Node {
		if node.State != domain.StateActive || node.History.Has(domain.EventDown) {
			return nil
		}
		updated := node.Clone()
		updated.History = updated.History.With(domain.EventDown, domain.AgentSystem, f.clk.Now())
		return updated
	})
}

func (f *Failer) clearDown(ctx context.Context, hostname string) {
	f.withApplicationLock(ctx, hostname, func(node *domain.Node) *domain.Node {
		if node.State != domain.StateActive || !node.History.Has(domain.EventDown) {
			return nil
		}
		updated := node.Clone()
		updated.History = updated.History.Without(domain.EventDown)
		return updated
	})
}

// withApplicationLock re-reads hostname under its application's lock,
// applies mutate (which returns nil to signal "no longer applicable"),
// and writes back the result.
func (f *Failer) withApplicationLock(ctx context.Context, hostname string, mutate func(*domain.Node) *domain.Node) {
	node, err := f.repo.GetNode(ctx, hostname)
	if err != nil {
		logger.Warn().Str("hostname", hostname).Err(err).Msg("lookup node before lock failed")
		return
	}
	if node.Allocation == nil {
		logger.Error().Str("hostname", hostname).Msg("active node has no allocation; skipping down-history update")
		return
	}

	release, err := f.repo.LockApplication(ctx, node.Allocation.ApplicationID)
	if err != nil {
		logger.Warn().Str("hostname", hostname).Err(err).Msg("lock application failed")
		return
	}
	defer release()

	node, err = f.repo.GetNode(ctx, hostname)
	if err != nil {
		logger.Warn().Str("hostname", hostname).Err(err).Msg("re-read node under lock failed")
		return
	}
	updated := mutate(node)
	if updated == nil {
		return
	}
	if err := f.repo.Write(ctx, updated); err != nil {
		logger.Warn().Str("hostname", hostname).Err(err).Msg("write down-history update failed")
	}
}

// phaseD hands active nodes that have been down longer than
// DownTimeLimit to the cascaded fail-active protocol, subject to
// suspension, fail-allowance, and throttle gates.
func (f *Failer) phaseD(ctx context.Context, now time.Time) error {
	active, err := f.repo.GetNodes(ctx, domain.StateActive)
	if err != nil {
		return fmt.Errorf("list active nodes: %w", err)
	}

	cutoff := now.Add(-f.cfg.DownTimeLimit)

	for _, node := range active {
		down, ok := node.History.Get(domain.EventDown)
		if !ok || !down.Instant.Before(cutoff) {
			continue
		}
		if node.Allocation == nil {
			logger.Error().Str("hostname", node.Hostname).Msg("long-down active node has no allocation; skipping")
			continue
		}

		suspended, err := f.suspended(node.Allocation.ApplicationID)
		if err != nil {
			logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("suspension check failed, skipping candidate")
			continue
		}
		if suspended {
			continue
		}

		allowed, err := f.failAllowedFor(ctx, node.Type)
		if err != nil {
			logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("fail-allowance check failed, skipping candidate")
			continue
		}
		if !allowed {
			continue
		}

		throttled, err := f.throttled(ctx)
		if err != nil {
			logger.Warn().Str("hostname", node.Hostname).Err(err).Msg("throttle check failed, skipping candidate")
			continue
		}
		if throttled {
			metrics.ThrottleTripped.WithLabelValues(f.cfg.ThrottlePolicy.Name).Inc()
			continue
		}

		f.Cascade(ctx, node.Hostname, ReasonLongDown)
	}
	return nil
}

func (f *Failer) suspended(applicationID string) (bool, error) {
	status, err := f.orchestrator.GetApplicationInstanceStatus(applicationID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrApplicationNotFound) {
			return false, nil
		}
		return false, err
	}
	return status == orchestrator.StatusAllowedDown, nil
}

// failAllowedFor reports whether another node of type t may be failed.
// tenant and host are unconditionally allowed; other types are gated on
// there being no existing failed node of that type.
func (f *Failer) failAllowedFor(ctx context.Context, t domain.Type) (bool, error) {
	if t == domain.TypeTenant || t == domain.TypeHost {
		return true, nil
	}
	failed, err := f.repo.GetNodesByType(ctx, t, domain.StateFailed)
	if err != nil {
		return false, err
	}
	return len(failed) == 0, nil
}
