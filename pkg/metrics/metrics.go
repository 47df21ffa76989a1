package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodefailer_nodes_total",
			Help: "Total number of nodes by type and state",
		},
		[]string{"type", "state"},
	)

	ThrottleBudget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodefailer_throttle_budget",
			Help: "Maximum number of fails the throttle policy allows within its window, by policy",
		},
		[]string{"policy"},
	)

	ThrottleTripped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodefailer_throttle_tripped_total",
			Help: "Number of times a fail was suppressed by the throttle policy",
		},
		[]string{"policy"},
	)

	NodesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodefailer_nodes_failed_total",
			Help: "Total number of fail transitions applied, by reason",
		},
		[]string{"reason"},
	)

	NodesParked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodefailer_nodes_parked_total",
			Help: "Total number of park transitions applied",
		},
	)

	NodesDirtied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodefailer_nodes_dirtied_total",
			Help: "Total number of dirty transitions applied by the expirer",
		},
	)

	CascadeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodefailer_cascade_outcomes_total",
			Help: "Cascaded fail-active attempts, by outcome",
		},
		[]string{"outcome"},
	)

	CascadeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nodefailer_cascade_duration_seconds",
			Help:    "Wall time of a cascaded fail-active attempt",
			Buckets: prometheus.DefBuckets,
		},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodefailer_breaker_state",
			Help: "Circuit breaker state by collaborator (0=closed, 0.5=half-open, 1=open)",
		},
		[]string{"collaborator"},
	)

	MaintainerTickSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodefailer_maintainer_tick_skipped_total",
			Help: "Maintainer ticks skipped because a job gate was closed, by job",
		},
		[]string{"job"},
	)

	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nodefailer_raft_is_leader",
			Help: "Whether this replica is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nodefailer_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodefailer_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodefailer_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(NodesByState)
	prometheus.MustRegister(ThrottleBudget)
	prometheus.MustRegister(ThrottleTripped)
	prometheus.MustRegister(NodesFailed)
	prometheus.MustRegister(NodesParked)
	prometheus.MustRegister(NodesDirtied)
	prometheus.MustRegister(CascadeOutcomes)
	prometheus.MustRegister(CascadeDuration)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(MaintainerTickSkipped)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
