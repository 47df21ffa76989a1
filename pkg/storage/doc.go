// Package storage implements the node repository's local persistence
// and locking. BoltStore keeps one bbolt bucket of domain.Node keyed by
// hostname, applying the repository's fixed mutation set (write, fail,
// park, setDirty, reactivate, removeRecursively) as individual bbolt
// transactions. Locker is satisfied by either LocalLocker, an in-process
// mutex map for a single control-plane replica, or EtcdLocker, which
// uses etcd's concurrency package to serialize per-application and
// global-unallocated access across replicas.
package storage
