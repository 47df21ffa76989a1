// Package servicemonitor supplies per-service-instance status grouped by
// application and cluster, the higher-fidelity liveness signal the
// failer uses for nodes already assigned to an application.
package servicemonitor

// ServiceStatus is the observed state of a single service instance.
type ServiceStatus string

const (
	StatusUp      ServiceStatus = "up"
	StatusDown    ServiceStatus = "down"
	StatusUnknown ServiceStatus = "unknown"
)

// ServiceInstance is one monitored endpoint on one host.
type ServiceInstance struct {
	HostName string
	Status   ServiceStatus
}

// ServiceCluster groups the instances of one service within an
// application.
type ServiceCluster struct {
	Name      string
	Instances []ServiceInstance
}

// ApplicationInstance is the full monitored surface of one deployed
// application.
type ApplicationInstance struct {
	ApplicationID string
	Clusters      []ServiceCluster
}

// Monitor is the consumed collaborator contract: status fused from
// whatever underlying health checks the deployment wires up.
type Monitor interface {
	// GetAllApplicationInstances returns the monitored status of every
	// known application, in a stable insertion order.
	GetAllApplicationInstances() ([]ApplicationInstance, error)

	// StatusIsKnown reports whether the monitor currently has a fresh
	// view of the fleet. When false, callers must treat every instance
	// as StatusUnknown even though the returned structs may still carry
	// a stale Up/Down value.
	StatusIsKnown() bool
}
