// Package domain holds the node-repository's entity model: the node record,
// its history of state-transition events, and the value types the
// maintenance core reasons about.
package domain

// Type is the role a node plays in the cluster.
type Type string

const (
	TypeTenant Type = "tenant"
	TypeHost   Type = "host"
	TypeProxy  Type = "proxy"
	TypeConfig Type = "config"
)

// FlavorKind distinguishes containerized leaves from bare-metal/VM flavors.
type FlavorKind string

const (
	FlavorBareMetal      FlavorKind = "bare_metal"
	FlavorVirtualMachine FlavorKind = "virtual_machine"
	FlavorDockerContainer FlavorKind = "docker_container"
)

// Flavor names the hardware/packaging shape of a node.
type Flavor struct {
	Name string     `json:"name"`
	Kind FlavorKind `json:"kind"`
}

// IsDockerContainer reports whether this flavor is a containerized leaf,
// per the throttle engine's and failer's container exemptions.
func (f Flavor) IsDockerContainer() bool {
	return f.Kind == FlavorDockerContainer
}

// State is a node's place in its lifecycle.
type State string

const (
	StateProvisioned State = "provisioned"
	StateReady       State = "ready"
	StateReserved    State = "reserved"
	StateActive      State = "active"
	StateInactive    State = "inactive"
	StateDirty       State = "dirty"
	StateFailed      State = "failed"
	StateParked      State = "parked"
)

// Allocation binds a node to the application it currently serves.
type Allocation struct {
	ApplicationID   string `json:"application_id"`
	MembershipIndex int    `json:"membership_index"`
}

// Status carries the node's accumulated fault signal. FailCount is
// strictly non-decreasing: the repository increments it on every Fail
// call and never resets it on SetDirty, so a node that keeps getting
// recycled without reaching the hardware-fault threshold (see
// pkg/expirer) will eventually trip it on repeated re-failure.
type Status struct {
	FailCount                  int     `json:"fail_count"`
	HardwareFailureDescription *string `json:"hardware_failure_description,omitempty"`
	HardwareDivergence         *string `json:"hardware_divergence,omitempty"`
}

// HasHardwareFailure reports whether a hardware failure has been recorded.
func (s Status) HasHardwareFailure() bool {
	return s.HardwareFailureDescription != nil
}

// HasHardwareDivergence reports whether a hardware divergence has been recorded.
func (s Status) HasHardwareDivergence() bool {
	return s.HardwareDivergence != nil
}

// Node is the node-repository's central entity.
type Node struct {
	Hostname       string     `json:"hostname"`
	Type           Type       `json:"type"`
	Flavor         Flavor     `json:"flavor"`
	State          State      `json:"state"`
	Allocation     *Allocation `json:"allocation,omitempty"`
	Status         Status     `json:"status"`
	History        History    `json:"history"`
	ParentHostname *string    `json:"parent_hostname,omitempty"`
}

// IsChild reports whether this node is a child container of a host.
func (n *Node) IsChild() bool {
	return n.ParentHostname != nil
}

// Clone returns a deep-enough copy for read-modify-write under a lock:
// callers mutate the clone and write it back rather than mutating the
// record a concurrent reader may be holding.
func (n *Node) Clone() *Node {
	clone := *n
	clone.History = n.History.Clone()
	if n.Allocation != nil {
		alloc := *n.Allocation
		clone.Allocation = &alloc
	}
	if n.Status.HardwareFailureDescription != nil {
		v := *n.Status.HardwareFailureDescription
		clone.Status.HardwareFailureDescription = &v
	}
	if n.Status.HardwareDivergence != nil {
		v := *n.Status.HardwareDivergence
		clone.Status.HardwareDivergence = &v
	}
	if n.ParentHostname != nil {
		v := *n.ParentHostname
		clone.ParentHostname = &v
	}
	return &clone
}

// Environment is a deployment-wide setting (not per-node) used by the
// expirer's hardware-fault heuristic, carried over from the zone concept
// in the system this core was distilled from.
type Environment string

const (
	EnvironmentProd    Environment = "prod"
	EnvironmentStaging Environment = "staging"
	EnvironmentDev     Environment = "dev"
	EnvironmentTest    Environment = "test"
	EnvironmentPerf    Environment = "perf"
)

// IsProduction reports whether the environment counts as production-grade
// for the purposes of the hardware-fault heuristic (prod or staging).
func (e Environment) IsProduction() bool {
	return e == EnvironmentProd || e == EnvironmentStaging
}
