package manager

import (
	"context"
	"time"

	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/metrics"
)

// MetricsCollector periodically samples the manager's node repository and
// Raft state into the Prometheus gauges and counters.
type MetricsCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewMetricsCollector creates a collector for mgr.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the 15-second sampling loop.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectNodeMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectNodeMetrics() {
	nodes, err := c.manager.GetNodes(context.Background(), "")
	if err != nil {
		return
	}

	counts := make(map[domain.Type]map[domain.State]int)
	for _, node := range nodes {
		if counts[node.Type] == nil {
			counts[node.Type] = make(map[domain.State]int)
		}
		counts[node.Type][node.State]++
	}

	for t, byState := range counts {
		for state, count := range byState {
			metrics.NodesByState.WithLabelValues(string(t), string(state)).Set(float64(count))
		}
	}
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.Stats()
	if stats == nil {
		return
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(appliedIndex))
	}
}
