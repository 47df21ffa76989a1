// Package manager replicates the node repository across control-plane
// replicas via Raft, generalizing the example fleet daemon's
// FSM/Command-apply pattern from its Service/Task mutation set to the
// node-failure core's own: write, fail, park, setDirty, reactivate,
// removeRecursively.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/events"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/storage"
)

var logger = log.WithComponent("manager")

// Manager owns the Raft-replicated node repository on this process.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft        *raft.Raft
	fsm         *FSM
	store       storage.Repository
	eventBroker *events.Broker
}

// Config holds construction parameters for a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
	Locker   storage.Locker
}

// NewManager creates a Manager backed by a fresh BoltDB store.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	locker := cfg.Locker
	if locker == nil {
		locker = storage.NewLocalLocker()
	}

	store, err := storage.NewBoltStore(cfg.DataDir, locker)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	return &Manager{
		nodeID:      cfg.NodeID,
		bindAddr:    cfg.BindAddr,
		dataDir:     cfg.DataDir,
		fsm:         NewFSM(store),
		store:       store,
		eventBroker: eventBroker,
	}, nil
}

func (m *Manager) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	// Tuned for LAN/edge control planes rather than Raft's WAN-conservative
	// defaults, trading lease margin for faster failover.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (m *Manager) newRaft() (*raft.Raft, error) {
	config := m.raftConfig()

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	return raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
}

// Bootstrap initializes a new single-node Raft cluster with this node as
// the only member.
func (m *Manager) Bootstrap() error {
	r, err := m.newRaft()
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	config := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(m.nodeID), Address: raft.ServerAddress(m.bindAddr)},
		},
	}
	if err := m.raft.BootstrapCluster(config).Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	logger.Info().Str("node_id", m.nodeID).Msg("cluster bootstrapped")
	return nil
}

// JoinExisting starts Raft for a node joining a cluster whose leader has
// already been told (out of band) to AddVoter this node; it does not
// perform the join RPC itself, per this core's non-goal of specifying
// transport to the repository.
func (m *Manager) JoinExisting() error {
	r, err := m.newRaft()
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r
	return nil
}

// AddVoter adds a new manager node to the Raft cluster. Must be called
// on the leader.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's address, if known.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// Stats returns a snapshot of Raft state for the readiness endpoint and
// metrics collector.
func (m *Manager) Stats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}
	return map[string]interface{}{
		"state":         m.raft.State().String(),
		"last_log_index": m.raft.LastIndex(),
		"applied_index":  m.raft.AppliedIndex(),
		"leader":         string(m.raft.Leader()),
	}
}

// EventBroker returns the manager's event broker.
func (m *Manager) EventBroker() *events.Broker {
	return m.eventBroker
}

func (m *Manager) apply(op string, data interface{}) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s args: %w", op, err)
	}
	cmd := Command{Op: op, Data: payload}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	future := m.raft.Apply(raw, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply %s: %w", op, err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// Write replicates an upsert of node.
func (m *Manager) Write(ctx context.Context, node *domain.Node) error {
	return m.apply("write", writeArgs{Node: node})
}

// Fail replicates a fail transition.
func (m *Manager) Fail(ctx context.Context, hostname, agent, reason string) (*domain.Node, error) {
	if err := m.apply("fail", failArgs{Hostname: hostname, Agent: agent, Reason: reason}); err != nil {
		return nil, err
	}
	m.eventBroker.Publish(&events.Event{
		Type:     events.EventNodeFailed,
		Message:  reason,
		Metadata: map[string]string{"hostname": hostname, "agent": agent},
	})
	return m.store.GetNode(ctx, hostname)
}

// Park replicates a park transition.
func (m *Manager) Park(ctx context.Context, hostname, agent, reason string) (*domain.Node, error) {
	if err := m.apply("park", parkArgs{Hostname: hostname, Agent: agent, Reason: reason}); err != nil {
		return nil, err
	}
	m.eventBroker.Publish(&events.Event{
		Type:     events.EventNodeParked,
		Message:  reason,
		Metadata: map[string]string{"hostname": hostname, "agent": agent},
	})
	return m.store.GetNode(ctx, hostname)
}

// SetDirty replicates a batch dirty transition.
func (m *Manager) SetDirty(ctx context.Context, hostnames []string, agent string) error {
	if err := m.apply("set_dirty", setDirtyArgs{Hostnames: hostnames, Agent: agent}); err != nil {
		return err
	}
	for _, hostname := range hostnames {
		m.eventBroker.Publish(&events.Event{
			Type:     events.EventNodeDirtied,
			Metadata: map[string]string{"hostname": hostname, "agent": agent},
		})
	}
	return nil
}

// Reactivate replicates a rollback-to-active transition.
func (m *Manager) Reactivate(ctx context.Context, hostname, agent string) (*domain.Node, error) {
	if err := m.apply("reactivate", reactivateArgs{Hostname: hostname, Agent: agent}); err != nil {
		return nil, err
	}
	m.eventBroker.Publish(&events.Event{
		Type:     events.EventNodeReactivated,
		Metadata: map[string]string{"hostname": hostname, "agent": agent},
	})
	return m.store.GetNode(ctx, hostname)
}

// RemoveRecursively replicates removal of a host and its children.
func (m *Manager) RemoveRecursively(ctx context.Context, hostname string) error {
	return m.apply("remove_recursively", removeArgs{Hostname: hostname})
}

// GetNode, GetNodes, GetNodesByType, and GetChildNodes are served from
// the local store: Raft guarantees every applied write is visible here
// without a round trip through the log.
func (m *Manager) GetNode(ctx context.Context, hostname string) (*domain.Node, error) {
	return m.store.GetNode(ctx, hostname)
}

func (m *Manager) GetNodes(ctx context.Context, state domain.State) ([]*domain.Node, error) {
	return m.store.GetNodes(ctx, state)
}

func (m *Manager) GetNodesByType(ctx context.Context, t domain.Type, state domain.State) ([]*domain.Node, error) {
	return m.store.GetNodesByType(ctx, t, state)
}

func (m *Manager) GetChildNodes(ctx context.Context, parentHostname string) ([]*domain.Node, error) {
	return m.store.GetChildNodes(ctx, parentHostname)
}

func (m *Manager) LockApplication(ctx context.Context, applicationID string) (func(), error) {
	return m.store.LockApplication(ctx, applicationID)
}

func (m *Manager) LockUnallocated(ctx context.Context) (func(), error) {
	return m.store.LockUnallocated(ctx)
}

// Shutdown gracefully stops Raft and closes the store.
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}
	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

var _ storage.Repository = (*managerRepository)(nil)

// managerRepository adapts *Manager to storage.Repository so the failer
// and expirer can be constructed against either a bare BoltStore
// (single replica) or a Raft-replicated Manager (multi-replica)
// interchangeably.
type managerRepository struct {
	*Manager
}

func (r *managerRepository) Close() error { return r.Manager.Shutdown() }

// AsRepository exposes m as a storage.Repository.
func (m *Manager) AsRepository() storage.Repository {
	return &managerRepository{Manager: m}
}
