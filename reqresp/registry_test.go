package reqresp_test

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/test"
	"github.com/prysmaticlabs/beacon-p2p/reqresp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randPeerID(t *testing.T) peer.ID {
	t.Helper()
	pid, err := test.RandPeerID()
	require.NoError(t, err)
	return pid
}

func TestRegistry_MountAssignsDenseIndices(t *testing.T) {
	r := reqresp.NewRegistry()
	idxA := r.Mount(&reqresp.ProtocolDescriptor{Name: "status"})
	idxB := r.Mount(&reqresp.ProtocolDescriptor{Name: "goodbye"})
	assert.Equal(t, 0, idxA)
	assert.Equal(t, 1, idxB)
}

func TestRegistry_MountDuplicateNamePanics(t *testing.T) {
	r := reqresp.NewRegistry()
	r.Mount(&reqresp.ProtocolDescriptor{Name: "status"})
	assert.Panics(t, func() {
		r.Mount(&reqresp.ProtocolDescriptor{Name: "status"})
	})
}

func TestRegistry_PeerStateLazyInit(t *testing.T) {
	r := reqresp.NewRegistry()
	type counter struct{ n int }
	idx := r.Mount(&reqresp.ProtocolDescriptor{
		Name:         "metadata",
		NewPeerState: func() interface{} { return &counter{} },
	})
	pid := randPeerID(t)
	state := r.PeerState(pid, idx).(*counter)
	state.n++
	again := r.PeerState(pid, idx).(*counter)
	assert.Equal(t, 1, again.n, "peer state must persist across lookups")
}

func TestRegistry_RunOnPeerConnectedStopsAtFirstError(t *testing.T) {
	r := reqresp.NewRegistry()
	var calls []string
	r.Mount(&reqresp.ProtocolDescriptor{
		Name: "a",
		OnPeerConnected: func(ctx context.Context, pid peer.ID) error {
			calls = append(calls, "a")
			return assert.AnError
		},
	})
	r.Mount(&reqresp.ProtocolDescriptor{
		Name: "b",
		OnPeerConnected: func(ctx context.Context, pid peer.ID) error {
			calls = append(calls, "b")
			return nil
		},
	})
	err := r.RunOnPeerConnected(context.Background(), randPeerID(t))
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, calls)
}

func TestRegistry_DropPeerClearsState(t *testing.T) {
	r := reqresp.NewRegistry()
	idx := r.Mount(&reqresp.ProtocolDescriptor{
		Name:         "metadata",
		NewPeerState: func() interface{} { return new(int) },
	})
	pid := randPeerID(t)
	first := r.PeerState(pid, idx)
	r.DropPeer(pid)
	second := r.PeerState(pid, idx)
	assert.NotSame(t, first, second)
}
