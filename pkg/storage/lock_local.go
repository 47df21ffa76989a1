package storage

import (
	"context"
	"sync"
)

// LocalLocker implements Locker with in-process mutexes: one per
// application id plus one for the global unallocated lock. It is the
// default for a single-replica deployment.
type LocalLocker struct {
	mu           sync.Mutex
	appLocks     map[string]*sync.Mutex
	unallocated  sync.Mutex
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{appLocks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) appMutex(applicationID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.appLocks[applicationID]
	if !ok {
		m = &sync.Mutex{}
		l.appLocks[applicationID] = m
	}
	return m
}

// LockApplication acquires the per-application mutex.
func (l *LocalLocker) LockApplication(ctx context.Context, applicationID string) (func(), error) {
	m := l.appMutex(applicationID)
	m.Lock()
	return m.Unlock, nil
}

// LockUnallocated acquires the global unallocated mutex.
func (l *LocalLocker) LockUnallocated(ctx context.Context) (func(), error) {
	l.unallocated.Lock()
	return l.unallocated.Unlock, nil
}
