package connector

import (
	"testing"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randPeerID(t *testing.T) peer.ID {
	t.Helper()
	p, err := test.RandPeerID()
	require.NoError(t, err)
	return p
}

func TestPeerPool_AdmitRespectsDirectionalBudget(t *testing.T) {
	pool := NewPeerPool(1, 1, 0, nil)
	a, b := randPeerID(t), randPeerID(t)

	assert.Equal(t, Success, pool.Admit(a, Inbound))
	assert.Equal(t, NoSpaceError, pool.Admit(b, Inbound))
	assert.Equal(t, Success, pool.Admit(b, Outbound))
}

func TestPeerPool_DuplicateConnectionRefcounted(t *testing.T) {
	pool := NewPeerPool(10, 10, 0, nil)
	a := randPeerID(t)

	require.Equal(t, Success, pool.Admit(a, Outbound))
	require.Equal(t, Success, pool.Admit(a, Outbound))
	assert.Equal(t, 1, pool.Len())

	pool.Release(a, Outbound)
	assert.True(t, pool.IsConnected(a))
	pool.Release(a, Outbound)
	assert.False(t, pool.IsConnected(a))
}

func TestPeerPool_LowScoreRejected(t *testing.T) {
	pool := NewPeerPool(10, 10, 0, func(peer.ID) int64 { return -100 })
	a := randPeerID(t)
	assert.Equal(t, LowScoreError, pool.Admit(a, Inbound))
}

func TestPeerPool_MarkDeadRejectsFurtherAdmission(t *testing.T) {
	pool := NewPeerPool(10, 10, 0, nil)
	a := randPeerID(t)
	pool.MarkDead(a)
	assert.Equal(t, DeadPeerError, pool.Admit(a, Inbound))
}

func TestPeerPool_OnCountChangedFiresOnNewAndDeleted(t *testing.T) {
	pool := NewPeerPool(10, 10, 0, nil)
	var seen []int
	pool.SetOnCountChanged(func(total int) { seen = append(seen, total) })

	a := randPeerID(t)
	require.Equal(t, Success, pool.Admit(a, Inbound))
	pool.Release(a, Inbound)

	assert.Equal(t, []int{1, 0}, seen)
}
