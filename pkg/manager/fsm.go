package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/storage"
)

// FSM implements the Raft finite state machine backing the replicated
// node repository. It applies committed log entries to the local
// BoltDB-backed store.
type FSM struct {
	mu    sync.RWMutex
	store storage.Repository
}

// NewFSM wraps store as a Raft FSM.
func NewFSM(store storage.Repository) *FSM {
	return &FSM{store: store}
}

// Command is a state-change operation carried in the Raft log, mirroring
// the repository's mutation set (§6 of the core's operations table).
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type writeArgs struct {
	Node *domain.Node `json:"node"`
}

type failArgs struct {
	Hostname string `json:"hostname"`
	Agent    string `json:"agent"`
	Reason   string `json:"reason"`
}

type parkArgs = failArgs

type setDirtyArgs struct {
	Hostnames []string `json:"hostnames"`
	Agent     string   `json:"agent"`
}

type reactivateArgs struct {
	Hostname string `json:"hostname"`
	Agent    string `json:"agent"`
}

type removeArgs struct {
	Hostname string `json:"hostname"`
}

// Apply applies a committed Raft log entry to the FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()

	switch cmd.Op {
	case "write":
		var args writeArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.Write(ctx, args.Node)

	case "fail":
		var args failArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		_, err := f.store.Fail(ctx, args.Hostname, args.Agent, args.Reason)
		return err

	case "park":
		var args parkArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		_, err := f.store.Park(ctx, args.Hostname, args.Agent, args.Reason)
		return err

	case "set_dirty":
		var args setDirtyArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.SetDirty(ctx, args.Hostnames, args.Agent)

	case "reactivate":
		var args reactivateArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		_, err := f.store.Reactivate(ctx, args.Hostname, args.Agent)
		return err

	case "remove_recursively":
		var args removeArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.RemoveRecursively(ctx, args.Hostname)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of every node record.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes, err := f.store.GetNodes(context.Background(), "")
	if err != nil {
		return nil, fmt.Errorf("list nodes for snapshot: %w", err)
	}

	return &Snapshot{Nodes: nodes}, nil
}

// Restore replaces the store's contents from a snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	for _, node := range snapshot.Nodes {
		if err := f.store.Write(ctx, node); err != nil {
			return fmt.Errorf("restore node %s: %w", node.Hostname, err)
		}
	}
	return nil
}

// Snapshot represents a point-in-time capture of every node record.
type Snapshot struct {
	Nodes []*domain.Node
}

// Persist writes the snapshot to the Raft snapshot sink.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op; the snapshot holds no external resources.
func (s *Snapshot) Release() {}
