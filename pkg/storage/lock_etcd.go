package storage

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdLocker implements Locker via etcd's concurrency package, giving
// the two locking primitives cluster-wide meaning when the daemon runs
// as more than one replica sharing an etcd cluster.
type EtcdLocker struct {
	client    *clientv3.Client
	keyPrefix string
}

// NewEtcdLocker creates an EtcdLocker rooted at keyPrefix (e.g.
// "/nodefailer/locks").
func NewEtcdLocker(client *clientv3.Client, keyPrefix string) *EtcdLocker {
	return &EtcdLocker{client: client, keyPrefix: keyPrefix}
}

func (l *EtcdLocker) lock(ctx context.Context, key string) (func(), error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("etcd lock session: %w", err)
	}
	mu := concurrency.NewMutex(session, key)
	if err := mu.Lock(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("etcd lock acquire %s: %w", key, err)
	}
	release := func() {
		_ = mu.Unlock(context.Background())
		_ = session.Close()
	}
	return release, nil
}

// LockApplication acquires the distributed lock for applicationID.
func (l *EtcdLocker) LockApplication(ctx context.Context, applicationID string) (func(), error) {
	return l.lock(ctx, fmt.Sprintf("%s/application/%s", l.keyPrefix, applicationID))
}

// LockUnallocated acquires the distributed unallocated-nodes lock.
func (l *EtcdLocker) LockUnallocated(ctx context.Context) (func(), error) {
	return l.lock(ctx, fmt.Sprintf("%s/unallocated", l.keyPrefix))
}
