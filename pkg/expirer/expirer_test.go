package expirer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nodefailer/corectl/pkg/clock"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepository is a minimal in-memory storage.Repository, local to
// this package's tests (distinct from pkg/failer's copy, since Go does
// not share _test.go helpers across packages).
type fakeRepository struct {
	mu    sync.Mutex
	nodes map[string]*domain.Node
}

func newFakeRepository(nodes ...*domain.Node) *fakeRepository {
	r := &fakeRepository{nodes: make(map[string]*domain.Node)}
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
	return nil, nil
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
	return nil, nil
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
	return nil, nil
}

func (r *fakeRepository) RemoveRecursively(ctx context.Context, hostname string) error { return nil }

func (r *fakeRepository) Close() error { return nil }

func (r *fakeRepository) LockApplication(ctx context.Context, applicationID string) (func(), error) {
	return func() {}, nil
}

func (r *fakeRepository) LockUnallocated(ctx context.Context) (func(), error) {
	return func() {}, nil
}

var _ storage.Repository = (*fakeRepository)(nil)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestExpirer(repo storage.Repository, env domain.Environment) (*Expirer, *clock.Fake) {
	clk := clock.NewFake(baseTime)
	cfg := Config{Interval: time.Minute, FailTimeout: time.Hour, Environment: env}
	return New(cfg, repo, clk), clk
}

func TestStep_RecyclesPlainFailedNode(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	node := &domain.Node{
		Hostname: "t1", Type: domain.TypeTenant, State: domain.StateFailed,
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	repo := newFakeRepository(node)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDirty, got.State)
}

func TestStep_IgnoresNodesNotOldEnough(t *testing.T) {
	failedAt := baseTime.Add(-time.Minute)
	node := &domain.Node{
		Hostname: "t1", Type: domain.TypeTenant, State: domain.StateFailed,
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	repo := newFakeRepository(node)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
}

func TestStep_ParksNonHostWithHardwareFailure(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	desc := "bad dimm"
	node := &domain.Node{
		Hostname: "t1", Type: domain.TypeTenant, State: domain.StateFailed,
		Status:  domain.Status{HardwareFailureDescription: &desc},
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	repo := newFakeRepository(node)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateParked, got.State)
}

func TestStep_HostWithHardwareFaultAndUnparkedChildrenStaysFailed(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	desc := "bad dimm"
	hostname := "h1"
	host := &domain.Node{
		Hostname: hostname, Type: domain.TypeHost, State: domain.StateFailed,
		Status:  domain.Status{HardwareFailureDescription: &desc},
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	child := &domain.Node{
		Hostname: "c1", Type: domain.TypeTenant, State: domain.StateFailed, ParentHostname: &hostname,
	}
	repo := newFakeRepository(host, child)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), hostname)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
}

func TestStep_HostWithHardwareFaultAndParkedChildrenGetsParked(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	desc := "bad dimm"
	hostname := "h1"
	host := &domain.Node{
		Hostname: hostname, Type: domain.TypeHost, State: domain.StateFailed,
		Status:  domain.Status{HardwareFailureDescription: &desc},
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	child := &domain.Node{
		Hostname: "c1", Type: domain.TypeTenant, State: domain.StateParked, ParentHostname: &hostname,
	}
	repo := newFakeRepository(host, child)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), hostname)
	require.NoError(t, err)
	assert.Equal(t, domain.StateParked, got.State)
}

func TestStep_HighFailCountInProductionIsLeftFailed(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	node := &domain.Node{
		Hostname: "t1", Type: domain.TypeTenant, State: domain.StateFailed,
		Status:  domain.Status{FailCount: 5},
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	repo := newFakeRepository(node)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)
}

func TestStep_HighFailCountOutsideProductionIsRecycled(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	node := &domain.Node{
		Hostname: "t1", Type: domain.TypeTenant, State: domain.StateFailed,
		Status:  domain.Status{FailCount: 5},
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	repo := newFakeRepository(node)
	e, _ := newTestExpirer(repo, domain.EnvironmentDev)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDirty, got.State)
}

func TestStep_HighFailCountOnContainerIsRecycled(t *testing.T) {
	failedAt := baseTime.Add(-2 * time.Hour)
	node := &domain.Node{
		Hostname: "t1", Type: domain.TypeTenant, State: domain.StateFailed,
		Flavor:  domain.Flavor{Kind: domain.FlavorDockerContainer},
		Status:  domain.Status{FailCount: 9},
		History: domain.History{{Type: domain.EventFailed, Agent: domain.AgentSystem, Instant: failedAt}},
	}
	repo := newFakeRepository(node)
	e, _ := newTestExpirer(repo, domain.EnvironmentProd)

	require.NoError(t, e.Step(context.Background()))

	got, err := repo.GetNode(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDirty, got.State)
}
