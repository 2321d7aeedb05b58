package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageID_DeterministicAndDomainSeparated(t *testing.T) {
	id1 := MessageID("/eth2/abcd1234/beacon_block/ssz_snappy", []byte("payload"))
	id2 := MessageID("/eth2/abcd1234/beacon_block/ssz_snappy", []byte("payload"))
	assert.Equal(t, id1, id2)

	idOtherTopic := MessageID("/eth2/abcd1234/beacon_aggregate_and_proof/ssz_snappy", []byte("payload"))
	assert.NotEqual(t, id1, idOtherTopic)
}

func TestMessageID_Phase0PrefixOmitsTopic_Pipeline(t *testing.T) {
	idA := MessageID(phase0TopicPrefix+"beacon_block/ssz_snappy", []byte("payload"))
	idB := MessageID(phase0TopicPrefix+"beacon_aggregate_and_proof/ssz_snappy", []byte("payload"))
	assert.Equal(t, idA, idB, "phase-0 topics must hash identically regardless of topic name")
}

func TestSubscriptionFilter_AcceptsCurrentAndPreviousDigestOnly(t *testing.T) {
	f := NewSubscriptionFilter("aaaaaaaa")
	assert.True(t, f.CanSubscribe("/eth2/aaaaaaaa/beacon_block/ssz_snappy"))
	assert.False(t, f.CanSubscribe("/eth2/bbbbbbbb/beacon_block/ssz_snappy"))
	assert.False(t, f.CanSubscribe("/not-eth2/aaaaaaaa/beacon_block/ssz_snappy"))

	f.SetForkDigests("cccccccc", "aaaaaaaa")
	assert.True(t, f.CanSubscribe("/eth2/aaaaaaaa/beacon_block/ssz_snappy"))
	assert.True(t, f.CanSubscribe("/eth2/cccccccc/beacon_block/ssz_snappy"))
}

func TestSnappyRoundTrip(t *testing.T) {
	payload := []byte("some ssz-encoded bytes, repeated repeated repeated")
	encoded := snappyEncode(payload)
	decoded, err := snappyDecode(encoded)
	assert.NoError(t, err)
	assert.Equal(t, payload, decoded)
}
