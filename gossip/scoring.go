package gossip

import (
	"math"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

// Mesh degree targets referenced by both gossip scoring and the mesh monitor (spec §4.10):
// libp2p's own gossipsub defaults (D=8, Dlo=6, Dhi=12, Dout=2).
const (
	DLow  = 6
	DHigh = 12
	DOut  = 2
)

const (
	maxInMeshScore        = 10
	maxFirstDeliveryScore = 40
	decayToZero           = 0.01
	dampeningFactor       = 90
)

// PeerScoreParams builds the process-wide gossipsub peer scoring parameters (spec §4.10 feeds
// off these via the router's internal counters), grounded on the teacher's
// gossip_scoring_params.go peerScoringParams — trimmed to the constants that do not depend on
// an active-validator-set lookup (out of scope here, spec §1).
func PeerScoreParams(oneSlot, oneEpoch time.Duration) (*pubsub.PeerScoreParams, *pubsub.PeerScoreThresholds) {
	thresholds := &pubsub.PeerScoreThresholds{
		GossipThreshold:             -4000,
		PublishThreshold:            -8000,
		GraylistThreshold:           -16000,
		AcceptPXThreshold:           100,
		OpportunisticGraftThreshold: 5,
	}
	params := &pubsub.PeerScoreParams{
		Topics:                      make(map[string]*pubsub.TopicScoreParams),
		TopicScoreCap:               32.72,
		AppSpecificScore:            func(peer.ID) float64 { return 0 },
		AppSpecificWeight:           1,
		IPColocationFactorWeight:    -35.11,
		IPColocationFactorThreshold: 10,
		BehaviourPenaltyWeight:      -15.92,
		BehaviourPenaltyThreshold:   6,
		BehaviourPenaltyDecay:       scoreDecay(10*oneEpoch, oneSlot),
		DecayInterval:               oneSlot,
		DecayToZero:                 decayToZero,
		RetainScore:                 100 * oneEpoch,
	}
	return params, thresholds
}

// scoreDecay derives a decay factor so a value reaches decayToZero after span, sampled every
// oneSlot (same derivation as the teacher's shared scoreDecay helper).
func scoreDecay(span, oneSlot time.Duration) float64 {
	numOfTimes := float64(span) / float64(oneSlot)
	return decayFactor(numOfTimes)
}

func decayFactor(numOfTimes float64) float64 {
	if numOfTimes <= 0 {
		return 0
	}
	return math.Pow(decayToZero, 1/numOfTimes)
}

// DefaultTopicScoreParams builds a generic mesh-delivery scoring curve for one topic weighted
// by weight, with expectedMessagesPerEpoch setting the mesh-message-delivery cap (and a tenth
// of it the threshold), mirroring the shape of the teacher's
// defaultBlockTopicParams/defaultAggregateTopicParams family without needing a live
// active-validator-set lookup (out of scope, spec §1): the mesh-time cap (dampeningFactor) and
// first-message-delivery cap (maxFirstDeliveryScore) are fixed constants, with decays derived
// from oneEpoch.
func DefaultTopicScoreParams(weight float64, expectedMessagesPerEpoch float64, oneSlot, oneEpoch time.Duration) *pubsub.TopicScoreParams {
	return &pubsub.TopicScoreParams{
		TopicWeight:                     weight,
		TimeInMeshWeight:                maxInMeshScore / float64(dampeningFactor),
		TimeInMeshQuantum:               oneSlot,
		TimeInMeshCap:                   float64(dampeningFactor),
		FirstMessageDeliveriesWeight:    2,
		FirstMessageDeliveriesDecay:     scoreDecay(oneEpoch*20, oneSlot),
		FirstMessageDeliveriesCap:       maxFirstDeliveryScore,
		MeshMessageDeliveriesWeight:     -1,
		MeshMessageDeliveriesDecay:      scoreDecay(oneEpoch*10, oneSlot),
		MeshMessageDeliveriesCap:        expectedMessagesPerEpoch,
		MeshMessageDeliveriesThreshold:  expectedMessagesPerEpoch / 10,
		MeshMessageDeliveriesWindow:     2 * time.Second,
		MeshMessageDeliveriesActivation: oneEpoch,
		MeshFailurePenaltyWeight:        -1,
		MeshFailurePenaltyDecay:         scoreDecay(oneEpoch*10, oneSlot),
		InvalidMessageDeliveriesWeight:  -2000,
		InvalidMessageDeliveriesDecay:   scoreDecay(oneEpoch*50, oneSlot),
	}
}
