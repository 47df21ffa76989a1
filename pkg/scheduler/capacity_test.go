package scheduler

import (
	"context"
	"testing"

	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNodeLister struct {
	nodes []*domain.Node
}

func (f *fakeNodeLister) GetNodesByType(ctx context.Context, t domain.Type, state domain.State) ([]*domain.Node, error) {
	var out []*domain.Node
	for _, n := range f.nodes {
		if n.Type == t && n.State == state {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestCapacityChecker_HasCapacity(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []*domain.Node
		nodeType domain.Type
		expected bool
	}{
		{
			name: "unallocated ready tenant node available",
			nodes: []*domain.Node{
				{Hostname: "t1", Type: domain.TypeTenant, State: domain.StateReady},
			},
			nodeType: domain.TypeTenant,
			expected: true,
		},
		{
			name: "only allocated ready nodes",
			nodes: []*domain.Node{
				{Hostname: "t1", Type: domain.TypeTenant, State: domain.StateReady, Allocation: &domain.Allocation{ApplicationID: "app"}},
			},
			nodeType: domain.TypeTenant,
			expected: false,
		},
		{
			name: "wrong type filtered out",
			nodes: []*domain.Node{
				{Hostname: "h1", Type: domain.TypeHost, State: domain.StateReady},
			},
			nodeType: domain.TypeTenant,
			expected: false,
		},
		{
			name:     "no nodes",
			nodes:    nil,
			nodeType: domain.TypeTenant,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCapacityChecker(&fakeNodeLister{nodes: tt.nodes})
			got, err := checker.HasCapacity(context.Background(), tt.nodeType)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSelectLeastLoaded(t *testing.T) {
	allocated := &domain.Node{Hostname: "a", Allocation: &domain.Allocation{ApplicationID: "app"}}
	unallocated := &domain.Node{Hostname: "b"}

	assert.Nil(t, SelectLeastLoaded(nil))
	assert.Nil(t, SelectLeastLoaded([]*domain.Node{allocated}))
	assert.Equal(t, unallocated, SelectLeastLoaded([]*domain.Node{allocated, unallocated}))
}
