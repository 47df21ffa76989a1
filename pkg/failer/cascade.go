package failer

import (
	"context"
	"errors"
	"time"

	"github.com/nodefailer/corectl/pkg/deploy"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/metrics"
)

// deployHandleTimeout is how long a deployment handle remains valid
// before Activate fails it, per the protocol's step 1.
const deployHandleTimeout = 30 * time.Minute

// Cascade runs the cascaded fail-active protocol against hostname:
// remove it (and, if it is a host, its children) from its application
// and reactivate the application without it. Returns true on success.
// On failure only the target itself is rolled back (when activation
// fails); children already failed during the attempt stay failed.
func (f *Failer) Cascade(ctx context.Context, hostname, reason string) bool {
	timer := metrics.NewTimer()
	ok := f.cascade(ctx, hostname, reason, make(map[string]bool))
	timer.ObserveDuration(metrics.CascadeDuration)
	return ok
}

func (f *Failer) cascade(ctx context.Context, hostname, reason string, failedThisCall map[string]bool) bool {
	nlog := log.WithNodeID(logger, hostname)

	node, err := f.repo.GetNode(ctx, hostname)
	if err != nil {
		nlog.Warn().Err(err).Msg("cascade: lookup target failed")
		metrics.CascadeOutcomes.WithLabelValues("lookup_failed").Inc()
		return false
	}
	if node.Allocation == nil {
		nlog.Error().Msg("cascade: target has no allocation")
		metrics.CascadeOutcomes.WithLabelValues("lookup_failed").Inc()
		return false
	}
	applicationID := node.Allocation.ApplicationID

	handle, err := f.deployer.DeployFromLocalActive(ctx, applicationID, deployHandleTimeout)
	if err != nil {
		if errors.Is(err, deploy.ErrDeploymentOwnedElsewhere) {
			nlog.Info().Str("application_id", applicationID).Msg("cascade: deployment owned by another replica, deferring")
			metrics.CascadeOutcomes.WithLabelValues("owned_elsewhere").Inc()
			return false
		}
		if errors.Is(err, deploy.ErrNoHandleAvailable) {
			nlog.Info().Str("application_id", applicationID).Msg("cascade: no deployment handle available, retrying next tick")
			metrics.CascadeOutcomes.WithLabelValues("no_handle").Inc()
			return false
		}
		nlog.Warn().Err(err).Msg("cascade: deployer error")
		metrics.CascadeOutcomes.WithLabelValues("no_handle").Inc()
		return false
	}

	release, err := f.repo.LockApplication(ctx, applicationID)
	if err != nil {
		nlog.Warn().Err(err).Msg("cascade: lock application failed")
		metrics.CascadeOutcomes.WithLabelValues("lookup_failed").Inc()
		return false
	}
	defer release()

	if node.Type == domain.TypeHost {
		children, err := f.repo.GetChildNodes(ctx, hostname)
		if err != nil {
			nlog.Warn().Err(err).Msg("cascade: list children failed")
			metrics.CascadeOutcomes.WithLabelValues("child_fail_failed").Inc()
			return false
		}
		for _, child := range children {
			if child.State == domain.StateActive {
				if !f.cascade(ctx, child.Hostname, reason, failedThisCall) {
					metrics.CascadeOutcomes.WithLabelValues("child_fail_failed").Inc()
					return false
				}
			} else {
				if _, err := f.repo.Fail(ctx, child.Hostname, domain.AgentSystem, reason); err != nil {
					nlog.Warn().Str("child_hostname", child.Hostname).Err(err).Msg("cascade: fail child failed")
					metrics.CascadeOutcomes.WithLabelValues("child_fail_failed").Inc()
					return false
				}
			}
			failedThisCall[child.Hostname] = true
		}
	}

	if _, err := f.repo.Fail(ctx, hostname, domain.AgentSystem, reason); err != nil {
		nlog.Warn().Err(err).Msg("cascade: fail target failed")
		metrics.CascadeOutcomes.WithLabelValues("lookup_failed").Inc()
		return false
	}
	failedThisCall[hostname] = true

	if err := handle.Activate(ctx); err != nil {
		nlog.Warn().Str("application_id", applicationID).Err(err).Msg("cascade: activation failed, rolling back target")
		if _, rbErr := f.repo.Reactivate(ctx, hostname, domain.AgentSystem); rbErr != nil {
			nlog.Error().Err(rbErr).Msg("cascade: rollback reactivate failed")
		}
		metrics.CascadeOutcomes.WithLabelValues("activation_failed").Inc()
		return false
	}

	metrics.CascadeOutcomes.WithLabelValues("success").Inc()
	nlog.Info().Str("application_id", applicationID).Msg("cascade: fail-active succeeded")
	return true
}
