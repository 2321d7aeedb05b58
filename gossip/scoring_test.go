package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeerScoreParams_ThresholdsOrdered(t *testing.T) {
	params, thresholds := PeerScoreParams(12*time.Second, 384*12*time.Second)

	assert.Less(t, thresholds.GraylistThreshold, thresholds.PublishThreshold)
	assert.Less(t, thresholds.PublishThreshold, thresholds.GossipThreshold)
	assert.NotNil(t, params.AppSpecificScore)
	assert.Equal(t, float64(0), params.AppSpecificScore(""))
	assert.Equal(t, float64(1), params.AppSpecificWeight)
}

func TestDecayFactor_NonPositiveSpanIsZero(t *testing.T) {
	assert.Equal(t, float64(0), decayFactor(0))
	assert.Equal(t, float64(0), decayFactor(-1))
}

func TestDecayFactor_ReachesDecayToZeroAfterNTimes(t *testing.T) {
	n := 10.0
	factor := decayFactor(n)
	// factor^n should land back at decayToZero, by construction (factor = decayToZero^(1/n)).
	got := 1.0
	for i := 0; i < int(n); i++ {
		got *= factor
	}
	assert.InDelta(t, decayToZero, got, 1e-9)
}

func TestDefaultTopicScoreParams_ScalesWithWeight(t *testing.T) {
	oneSlot := 12 * time.Second
	oneEpoch := 32 * oneSlot

	low := DefaultTopicScoreParams(0.5, 100, oneSlot, oneEpoch)
	high := DefaultTopicScoreParams(2.0, 100, oneSlot, oneEpoch)

	assert.Equal(t, 0.5, low.TopicWeight)
	assert.Equal(t, 2.0, high.TopicWeight)
	assert.Equal(t, low.MeshMessageDeliveriesCap, high.MeshMessageDeliveriesCap)
	assert.Equal(t, float64(100)/10, low.MeshMessageDeliveriesThreshold)
}
