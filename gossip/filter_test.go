package gossip

import (
	"testing"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pubsubpb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionFilter_CanSubscribe(t *testing.T) {
	f := NewSubscriptionFilter("abcd1234")

	assert.True(t, f.CanSubscribe("/eth2/abcd1234/beacon_block/ssz_snappy"))
	assert.False(t, f.CanSubscribe("/eth2/deadbeef/beacon_block/ssz_snappy"))
	assert.False(t, f.CanSubscribe("not-a-topic"))
	assert.False(t, f.CanSubscribe("/eth2/abcd1234/beacon_block"))
}

func TestSubscriptionFilter_AcceptsPreviousDigestAfterForkBoundary(t *testing.T) {
	f := NewSubscriptionFilter("newdigest")
	assert.False(t, f.CanSubscribe("/eth2/olddigest/beacon_block/ssz_snappy"))

	f.SetForkDigests("newdigest", "olddigest")
	assert.True(t, f.CanSubscribe("/eth2/newdigest/beacon_block/ssz_snappy"))
	assert.True(t, f.CanSubscribe("/eth2/olddigest/beacon_block/ssz_snappy"))
}

func TestSubscriptionFilter_FilterIncomingSubscriptions(t *testing.T) {
	f := NewSubscriptionFilter("abcd1234")
	yes := "/eth2/abcd1234/beacon_block/ssz_snappy"
	no := "/eth2/deadbeef/beacon_block/ssz_snappy"
	subscribe := true

	subs := []*pubsubpb.RPC_SubOpts{
		{Topicid: &yes, Subscribe: &subscribe},
		{Topicid: &no, Subscribe: &subscribe},
	}

	filtered, err := f.FilterIncomingSubscriptions("", subs)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, yes, filtered[0].GetTopicid())
}

func TestSubscriptionFilter_FilterIncomingSubscriptions_TooMany(t *testing.T) {
	f := NewSubscriptionFilter("abcd1234")
	topic := "/eth2/abcd1234/beacon_block/ssz_snappy"
	subscribe := true

	subs := make([]*pubsubpb.RPC_SubOpts, subscriptionRequestLimit+1)
	for i := range subs {
		subs[i] = &pubsubpb.RPC_SubOpts{Topicid: &topic, Subscribe: &subscribe}
	}

	_, err := f.FilterIncomingSubscriptions("", subs)
	assert.ErrorIs(t, err, pubsub.ErrTooManySubscriptions)
}
