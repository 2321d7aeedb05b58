package peers_test

import (
	"context"
	"testing"
	"time"

	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaManager_TryConsume_WithinBudget(t *testing.T) {
	q := peers.NewQuotaManager(5)
	pid := randPeerID(t)

	for i := 0; i < 5; i++ {
		assert.True(t, q.TryConsume(pid, "status"), "consume %d should be within per-peer budget", i)
	}
}

func TestQuotaManager_TryConsume_ExceedsPerPeerBudget(t *testing.T) {
	q := peers.NewQuotaManager(2)
	pid := randPeerID(t)

	require.True(t, q.TryConsume(pid, "status"))
	require.True(t, q.TryConsume(pid, "status"))
	assert.False(t, q.TryConsume(pid, "status"))
	assert.Equal(t, uint64(1), q.ThrottleCount("status"))
}

func TestQuotaManager_Remove_ResetsBucket(t *testing.T) {
	q := peers.NewQuotaManager(1)
	pid := randPeerID(t)

	require.True(t, q.TryConsume(pid, "status"))
	require.False(t, q.TryConsume(pid, "status"))

	q.Remove(pid)
	assert.True(t, q.TryConsume(pid, "status"))
}

func TestQuotaManager_Wait_ReturnsOnceBucketRecovers(t *testing.T) {
	q := peers.NewQuotaManager(1)
	pid := randPeerID(t)
	require.True(t, q.TryConsume(pid, "status"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, q.Wait(ctx, pid))
}
