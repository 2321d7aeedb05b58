package scorers_test

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/test"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/scorers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randPeerID(t *testing.T) peer.ID {
	t.Helper()
	pid, err := test.RandPeerID()
	require.NoError(t, err)
	return pid
}

func TestService_UpdateClampsAndReportsLowLimit(t *testing.T) {
	store := peerdata.NewStore()
	svc := scorers.NewService(store, nil)
	pid := randPeerID(t)

	newScore, low := svc.Update(pid, scorers.ScoreLowLimit-10)
	assert.Equal(t, scorers.ScoreLowLimit, newScore)
	assert.True(t, low)

	newScore, low = svc.Update(pid, scorers.ScoreHighLimit*2)
	assert.Equal(t, scorers.ScoreHighLimit, newScore)
	assert.False(t, low)
}

func TestService_DecayMovesScoreTowardZero(t *testing.T) {
	store := peerdata.NewStore()
	svc := scorers.NewService(store, &scorers.Config{DecayInterval: 10 * time.Millisecond, DecayStep: 5})
	pid := randPeerID(t)
	svc.Update(pid, 20)

	svc.StartDecay()
	defer svc.StopDecay()

	require.Eventually(t, func() bool {
		return svc.Score(pid) < 20
	}, time.Second, 5*time.Millisecond)
}

func TestService_IncrementBadResponsesThreshold(t *testing.T) {
	store := peerdata.NewStore()
	svc := scorers.NewService(store, nil)
	pid := randPeerID(t)

	for i := 0; i < scorers.DefaultBadResponsesThreshold-1; i++ {
		_, isBad := svc.IncrementBadResponses(pid, 0)
		assert.False(t, isBad)
	}
	_, isBad := svc.IncrementBadResponses(pid, 0)
	assert.True(t, isBad)
}
