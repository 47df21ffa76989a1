package failer

import (
	"context"
	"sync"
	"time"

	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/orchestrator"
	"github.com/nodefailer/corectl/pkg/servicemonitor"
	"github.com/nodefailer/corectl/pkg/storage"
)

// fakeRepository is a minimal in-memory storage.Repository for failer
// tests: no real concurrency control beyond a single mutex, enough to
// exercise lock/read-modify-write sequencing.
type fakeRepository struct {
	mu        sync.Mutex
	nodes     map[string]*domain.Node
	appLocks  map[string]*sync.Mutex
	unalloc   sync.Mutex
	failErr   error
	activateN int
}

func newFakeRepository(nodes ...*domain.Node) *fakeRepository {
	r := &fakeRepository{
		nodes:    make(map[string]*domain.Node),
		appLocks: make(map[string]*sync.Mutex),
	}
	for _, n := range nodes {
		r.nodes[n.Hostname] = n
	}
	return r
}

func (r *fakeRepository) GetNodes(ctx context.Context, state domain.State) ([]*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Node
	for _, n := range r.nodes {
		if state == "" || n.State == state {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepository) GetNodesByType(ctx context.Context, t domain.Type, state domain.State) ([]*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Node
	for _, n := range r.nodes {
		if n.Type == t && n.State == state {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepository) GetNode(ctx context.Context, hostname string) (*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[hostname]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *fakeRepository) GetChildNodes(ctx context.Context, parentHostname string) ([]*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Node
	for _, n := range r.nodes {
		if n.ParentHostname != nil && *n.ParentHostname == parentHostname {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepository) Write(ctx context.Context, node *domain.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[node.Hostname] = node.Clone()
	return nil
}

func (r *fakeRepository) Fail(ctx context.Context, hostname, agent, reason string) (*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	n, ok := r.nodes[hostname]
	if !ok {
		return nil, storage.ErrNotFound
	}
	updated := n.Clone()
	updated.State = domain.StateFailed
	updated.Status.FailCount++
	updated.History = updated.History.With(domain.EventFailed, agent, time.Now())
	r.nodes[hostname] = updated
	return updated.Clone(), nil
}

func (r *fakeRepository) Park(ctx context.Context, hostname, agent, reason string) (*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[hostname]
	if !ok {
		return nil, storage.ErrNotFound
	}
	updated := n.Clone()
	updated.State = domain.StateParked
	updated.History = updated.History.With(domain.EventParked, agent, time.Now())
	r.nodes[hostname] = updated
	return updated.Clone(), nil
}

func (r *fakeRepository) SetDirty(ctx context.Context, hostnames []string, agent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hostnames {
		n, ok := r.nodes[h]
		if !ok {
			continue
		}
		updated := n.Clone()
		updated.State = domain.StateDirty
		updated.History = updated.History.With(domain.EventDirtied, agent, time.Now())
		r.nodes[h] = updated
	}
	return nil
}

func (r *fakeRepository) Reactivate(ctx context.Context, hostname, agent string) (*domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[hostname]
	if !ok {
		return nil, storage.ErrNotFound
	}
	updated := n.Clone()
	updated.State = domain.StateActive
	updated.History = updated.History.With(domain.EventActivated, agent, time.Now())
	r.nodes[hostname] = updated
	return updated.Clone(), nil
}

func (r *fakeRepository) RemoveRecursively(ctx context.Context, hostname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, hostname)
	for h, n := range r.nodes {
		if n.ParentHostname != nil && *n.ParentHostname == hostname {
			delete(r.nodes, h)
		}
	}
	return nil
}

func (r *fakeRepository) Close() error { return nil }

func (r *fakeRepository) LockApplication(ctx context.Context, applicationID string) (func(), error) {
	r.mu.Lock()
	m, ok := r.appLocks[applicationID]
	if !ok {
		m = &sync.Mutex{}
		r.appLocks[applicationID] = m
	}
	r.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

func (r *fakeRepository) LockUnallocated(ctx context.Context) (func(), error) {
	r.unalloc.Lock()
	return r.unalloc.Unlock, nil
}

var _ storage.Repository = (*fakeRepository)(nil)

// fakeLiveness is a liveness.Tracker backed by a plain map.
type fakeLiveness struct {
	last map[string]time.Time
}

func newFakeLiveness() *fakeLiveness {
	return &fakeLiveness{last: make(map[string]time.Time)}
}

func (l *fakeLiveness) LastRequestFrom(hostname string) (time.Time, bool) {
	t, ok := l.last[hostname]
	return t, ok
}

func (l *fakeLiveness) Record(hostname string, instant time.Time) {
	if l.last == nil {
		l.last = make(map[string]time.Time)
	}
	l.last[hostname] = instant
}

// fakeMonitor is a servicemonitor.Monitor with a canned, mutable view.
type fakeMonitor struct {
	instances []servicemonitor.ApplicationInstance
	known     bool
}

func (m *fakeMonitor) GetAllApplicationInstances() ([]servicemonitor.ApplicationInstance, error) {
	return m.instances, nil
}

func (m *fakeMonitor) StatusIsKnown() bool { return m.known }

// fakeOrchestrator answers suspension status from a map; applications
// not present return ErrApplicationNotFound.
type fakeOrchestrator struct {
	suspended map[string]bool
}

func (o *fakeOrchestrator) GetApplicationInstanceStatus(applicationID string) (orchestrator.InstanceStatus, error) {
	suspended, ok := o.suspended[applicationID]
	if !ok {
		return "", orchestrator.ErrApplicationNotFound
	}
	if suspended {
		return orchestrator.StatusAllowedDown, nil
	}
	return orchestrator.StatusNoRemarks, nil
}

// fakeActivator lets tests control whether Activate succeeds.
type fakeActivator struct {
	err   error
	calls []string
}

func (a *fakeActivator) Activate(ctx context.Context, applicationID string) error {
	a.calls = append(a.calls, applicationID)
	return a.err
}

// fakeCapacity reports the configured capacity answer and error.
type fakeCapacity struct {
	hasCapacity bool
	err         error
}

func (c *fakeCapacity) HasCapacityFor(applicationID string) (bool, error) {
	return c.hasCapacity, c.err
}
