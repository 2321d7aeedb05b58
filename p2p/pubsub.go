package p2p

import (
	"context"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/prysmaticlabs/beacon-p2p/gossip"
)

// setPubSubParameters tunes package-level gossipsub heartbeat/history knobs before any PubSub is
// constructed (spec §4.10 mesh degree targets feed the same router these affect).
func setPubSubParameters() {
	pubsub.GossipSubDlo = gossip.DLow
	pubsub.GossipSubD = 8
	pubsub.GossipSubDhi = gossip.DHigh
	pubsub.GossipSubDout = gossip.DOut
	pubsub.GossipSubHeartbeatInterval = 700 * time.Millisecond
	pubsub.GossipSubHistoryLength = 6
	pubsub.GossipSubHistoryGossip = 3
}

// topicScoreParams picks a per-topic scoring curve by topic name, falling back to nil (gossipsub
// default) for topics this node has no tuned curve for (spec §4.10).
func (s *Service) topicScoreParams(topic string) *pubsub.TopicScoreParams {
	oneSlot, oneEpoch := s.cfg.OneSlot, s.cfg.OneEpoch
	switch {
	case strings.Contains(topic, "beacon_block"):
		return gossip.DefaultTopicScoreParams(0.5, 23, oneSlot, oneEpoch)
	case strings.Contains(topic, "beacon_aggregate_and_proof"):
		return gossip.DefaultTopicScoreParams(0.5, 179, oneSlot, oneEpoch)
	default:
		return nil
	}
}

// JoinGossipTopic joins (idempotently) and subscribes to topic through the gossip pipeline with
// decoder/validator/onAccept wired through (spec §4.6). It does not apply topicScoreParams'
// per-topic curve.
func (s *Service) JoinGossipTopic(ctx context.Context, topic string, decoder gossip.Decoder, validator gossip.Validator, lowPeer bool, onAccept func(from peer.ID, decoded interface{})) error {
	return s.gossip.SubscribeTopic(ctx, topic, decoder, validator, lowPeer, onAccept)
}
