package servicemonitor

import (
	"context"
	"sync"
	"time"

	"github.com/nodefailer/corectl/pkg/health"
)

// Target names one monitored instance within an application's service
// cluster, together with the health.Checker that backs it.
type Target struct {
	ApplicationID string
	Cluster       string
	HostName      string
	Checker       health.Checker
}

// CheckerMonitor is a Monitor built from a fixed set of health.Checker
// targets, polled on its own interval and cached so GetAllApplicationInstances
// never blocks on a live probe.
type CheckerMonitor struct {
	targets  []Target
	interval time.Duration

	mu        sync.RWMutex
	results   map[Target]ServiceStatus
	lastPoll  time.Time
	staleness time.Duration

	stopCh chan struct{}
}

// NewCheckerMonitor creates a CheckerMonitor that polls every interval
// and considers its view stale (StatusIsKnown()==false) if no poll has
// completed within staleness.
func NewCheckerMonitor(targets []Target, interval, staleness time.Duration) *CheckerMonitor {
	m := &CheckerMonitor{
		targets:   targets,
		interval:  interval,
		results:   make(map[Target]ServiceStatus),
		staleness: staleness,
		stopCh:    make(chan struct{}),
	}
	for _, t := range targets {
		m.results[t] = StatusUnknown
	}
	return m
}

// Start begins the polling loop.
func (m *CheckerMonitor) Start() {
	go func() {
		m.poll()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.poll()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the polling loop.
func (m *CheckerMonitor) Stop() {
	close(m.stopCh)
}

func (m *CheckerMonitor) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	results := make(map[Target]ServiceStatus, len(m.targets))
	for _, t := range m.targets {
		result := t.Checker.Check(ctx)
		if result.Healthy {
			results[t] = StatusUp
		} else {
			results[t] = StatusDown
		}
	}

	m.mu.Lock()
	m.results = results
	m.lastPoll = time.Now()
	m.mu.Unlock()
}

// StatusIsKnown reports whether a poll has completed within staleness.
func (m *CheckerMonitor) StatusIsKnown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastPoll.IsZero() {
		return false
	}
	return time.Since(m.lastPoll) < m.staleness
}

// GetAllApplicationInstances groups the cached per-target results by
// application and cluster.
func (m *CheckerMonitor) GetAllApplicationInstances() ([]ApplicationInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	known := !m.lastPoll.IsZero() && time.Since(m.lastPoll) < m.staleness

	order := make([]string, 0)
	byApp := make(map[string]map[string][]ServiceInstance)
	clusterOrder := make(map[string][]string)

	for _, t := range m.targets {
		if _, ok := byApp[t.ApplicationID]; !ok {
			byApp[t.ApplicationID] = make(map[string][]ServiceInstance)
			order = append(order, t.ApplicationID)
		}
		if _, ok := byApp[t.ApplicationID][t.Cluster]; !ok {
			clusterOrder[t.ApplicationID] = append(clusterOrder[t.ApplicationID], t.Cluster)
		}

		status := m.results[t]
		if !known {
			status = StatusUnknown
		}
		byApp[t.ApplicationID][t.Cluster] = append(byApp[t.ApplicationID][t.Cluster], ServiceInstance{
			HostName: t.HostName,
			Status:   status,
		})
	}

	instances := make([]ApplicationInstance, 0, len(order))
	for _, appID := range order {
		var clusters []ServiceCluster
		for _, clusterName := range clusterOrder[appID] {
			clusters = append(clusters, ServiceCluster{
				Name:      clusterName,
				Instances: byApp[appID][clusterName],
			})
		}
		instances = append(instances, ApplicationInstance{ApplicationID: appID, Clusters: clusters})
	}
	return instances, nil
}
