package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nodefailer/corectl/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

var bucketNodes = []byte("nodes")

// BoltStore is a BoltDB-backed Repository: one bucket holding every node
// record, keyed by hostname, JSON-marshaled.
type BoltStore struct {
	db     *bolt.DB
	locker Locker
}

// NewBoltStore opens (creating if absent) a BoltDB file under dataDir and
// wraps it with locker for the repository's two locking primitives.
func NewBoltStore(dataDir string, locker Locker) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "nodefailer.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNodes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db, locker: locker}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) LockApplication(ctx context.Context, applicationID string) (func(), error) {
	return s.locker.LockApplication(ctx, applicationID)
}

func (s *BoltStore) LockUnallocated(ctx context.Context) (func(), error) {
	return s.locker.LockUnallocated(ctx)
}

func (s *BoltStore) getLocked(tx *bolt.Tx, hostname string) (*domain.Node, error) {
	b := tx.Bucket(bucketNodes)
	data := b.Get([]byte(hostname))
	if data == nil {
		return nil, ErrNotFound
	}
	var node domain.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("unmarshal node %s: %w", hostname, err)
	}
	return &node, nil
}

func putLocked(tx *bolt.Tx, node *domain.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", node.Hostname, err)
	}
	return tx.Bucket(bucketNodes).Put([]byte(node.Hostname), data)
}

// GetNode returns a single node by hostname.
func (s *BoltStore) GetNode(ctx context.Context, hostname string) (*domain.Node, error) {
	var node *domain.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		n, err := s.getLocked(tx, hostname)
		if err != nil {
			return err
		}
		node = n
		return nil
	})
	return node, err
}

// GetNodes returns every node in the given state, or every node if
// state is the zero value.
func (s *BoltStore) GetNodes(ctx context.Context, state domain.State) ([]*domain.Node, error) {
	var nodes []*domain.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node domain.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if state == "" || node.State == state {
				nodes = append(nodes, &node)
			}
			return nil
		})
	})
	return nodes, err
}

// GetNodesByType returns nodes of the given type and state.
func (s *BoltStore) GetNodesByType(ctx context.Context, t domain.Type, state domain.State) ([]*domain.Node, error) {
	nodes, err := s.GetNodes(ctx, state)
	if err != nil {
		return nil, err
	}
	var filtered []*domain.Node
	for _, n := range nodes {
		if n.Type == t {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// GetChildNodes returns the child nodes of a host.
func (s *BoltStore) GetChildNodes(ctx context.Context, parentHostname string) ([]*domain.Node, error) {
	var children []*domain.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node domain.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if node.ParentHostname != nil && *node.ParentHostname == parentHostname {
				children = append(children, &node)
			}
			return nil
		})
	})
	return children, err
}

// Write persists node as-is (upsert).
func (s *BoltStore) Write(ctx context.Context, node *domain.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putLocked(tx, node)
	})
}

// Fail transitions hostname to failed.
func (s *BoltStore) Fail(ctx context.Context, hostname, agent, reason string) (*domain.Node, error) {
	var result *domain.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		node, err := s.getLocked(tx, hostname)
		if err != nil {
			return err
		}
		node.State = domain.StateFailed
		node.Status.FailCount++
		node.History = node.History.With(domain.EventFailed, agent, time.Now())
		if err := putLocked(tx, node); err != nil {
			return err
		}
		result = node
		return nil
	})
	return result, err
}

// Park transitions hostname to parked.
func (s *BoltStore) Park(ctx context.Context, hostname, agent, reason string) (*domain.Node, error) {
	var result *domain.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		node, err := s.getLocked(tx, hostname)
		if err != nil {
			return err
		}
		node.State = domain.StateParked
		node.History = node.History.With(domain.EventParked, agent, time.Now())
		if err := putLocked(tx, node); err != nil {
			return err
		}
		result = node
		return nil
	})
	return result, err
}

// SetDirty transitions every named hostname to dirty in a single
// transaction.
func (s *BoltStore) SetDirty(ctx context.Context, hostnames []string, agent string) error {
	if len(hostnames) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		now := time.Now()
		for _, hostname := range hostnames {
			node, err := s.getLocked(tx, hostname)
			if err != nil {
				return err
			}
			node.State = domain.StateDirty
			node.History = node.History.With(domain.EventDirtied, agent, now)
			if err := putLocked(tx, node); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reactivate rolls a node back to active.
func (s *BoltStore) Reactivate(ctx context.Context, hostname, agent string) (*domain.Node, error) {
	var result *domain.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		node, err := s.getLocked(tx, hostname)
		if err != nil {
			return err
		}
		node.State = domain.StateActive
		node.History = node.History.With(domain.EventActivated, agent, time.Now())
		if err := putLocked(tx, node); err != nil {
			return err
		}
		result = node
		return nil
	})
	return result, err
}

// RemoveRecursively deletes a host and all of its child nodes.
func (s *BoltStore) RemoveRecursively(ctx context.Context, hostname string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		var toDelete [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var node domain.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if node.Hostname == hostname || (node.ParentHostname != nil && *node.ParentHostname == hostname) {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
