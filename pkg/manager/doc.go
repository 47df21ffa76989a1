/*
Package manager replicates the node repository across control-plane
replicas using Raft consensus, so that the maintainer loop (pkg/maintainer,
pkg/failer, pkg/expirer) can run against a consistent view of node state
regardless of which replica currently leads.

# Architecture

	┌──────────────────────── CONTROL PLANE NODE ────────────────────────┐
	│                                                                      │
	│  ┌────────────────────────────────────────────────┐                │
	│  │          Maintainer (pkg/maintainer)            │                │
	│  │  failer tick, expirer tick, on suture schedule   │                │
	│  └──────────────────────┬───────────────────────────┘                │
	│                         │                                            │
	│  ┌──────────────────────▼───────────────────────────┐                │
	│  │                    Manager                        │                │
	│  │  - Write/Fail/Park/SetDirty/Reactivate/Remove     │                │
	│  │  - Reads served locally; writes go through Raft   │                │
	│  └──────────────────────┬───────────────────────────┘                │
	│                         │                                            │
	│  ┌──────────────────────▼───────────────────────────┐                │
	│  │            Raft Consensus Layer (hashicorp/raft)   │                │
	│  │  - Leader election, log replication                │                │
	│  └──────────────────────┬───────────────────────────┘                │
	│                         │                                            │
	│  ┌──────────────────────▼───────────────────────────┐                │
	│  │                      FSM                           │                │
	│  │  - Apply(): dispatch Command to storage.Repository │                │
	│  │  - Snapshot()/Restore(): []*domain.Node capture     │                │
	│  └──────────────────────┬───────────────────────────┘                │
	│                         │                                            │
	│  ┌──────────────────────▼───────────────────────────┐                │
	│  │                 BoltDB Store (pkg/storage)         │                │
	│  │  - One bucket of domain.Node, keyed by hostname    │                │
	│  └────────────────────────────────────────────────────┘               │
	└──────────────────────────────────────────────────────────────────────┘

# Replica counts

A single-replica deployment never bootstraps Raft meaningfully beyond a
one-node cluster; this is the common case for the node repository, which
is sized to a few thousand hosts rather than a high-churn scheduler
control plane. Three or five replicas add tolerance for replica loss
without changing the maintainer's read/write pattern.

# Commands

The FSM accepts exactly the repository's mutation set as Command.Op
values: write, fail, park, set_dirty, reactivate, remove_recursively.
There is no generic "apply arbitrary command" escape hatch; every
mutation the maintainer performs is one of these six.

# Reads

GetNode, GetNodes, GetNodesByType, and GetChildNodes are served from the
local BoltDB store directly, without going through Raft. Because every
write is itself a committed Raft entry applied to every replica's FSM,
a replica's local store is never ahead of the log it has applied, only
possibly behind a leader mid-partition — acceptable for a control loop
that already tolerates a tick being a snapshot slightly in the past.

# Locking

LockApplication and LockUnallocated delegate to whatever storage.Locker
the Manager was constructed with: an in-memory LocalLocker for a single
replica, or an EtcdLocker when multiple replicas share responsibility
for failing nodes and must not race each other's cascade or liveness
bookkeeping.
*/
package manager
