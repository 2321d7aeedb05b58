package p2p

import (
	"context"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
)

// ErrMessageNotMapped occurs on a Broadcast attempt when a message's concrete type has not been
// registered in GossipTypeMapping.
var ErrMessageNotMapped = errors.New("message type is not mapped to a pubsub topic")

// GossipTypeMapping maps a message's reflect.Type to its unsuffixed gossip topic name; the
// orchestrator populates this at construction time from the mounted gossip descriptors.
var GossipTypeMapping = make(map[reflect.Type]string)

const attestationSubnetTopicFormat = "/eth2/%s/committee_index%d_beacon_attestation"

// Broadcast publishes msg to the topic GossipTypeMapping gives for its type (spec §4.6).
// Subnet-specific attestation topics are published through BroadcastAttestation instead.
func (s *Service) Broadcast(ctx context.Context, msg encoder.SSZMarshaler) error {
	topic, ok := GossipTypeMapping[reflect.TypeOf(msg)]
	if !ok {
		return ErrMessageNotMapped
	}
	return s.gossip.Publish(ctx, topic, msg)
}

// BroadcastAttestation publishes an attestation onto its committee-index subnet topic (spec
// §4.6, stability-subnet aware).
func (s *Service) BroadcastAttestation(ctx context.Context, committeeIndex uint64, att encoder.SSZMarshaler) error {
	topic := fmt.Sprintf(attestationSubnetTopicFormat, s.forkDigest(), committeeIndex)
	return s.gossip.Publish(ctx, topic, att)
}
