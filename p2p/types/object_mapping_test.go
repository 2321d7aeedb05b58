package types_test

import (
	"reflect"
	"testing"

	"github.com/prysmaticlabs/beacon-p2p/p2p/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlock struct{ Slot uint64 }

func TestRegisterForkMapping_RoundTrip(t *testing.T) {
	types.ResetForkMappings()
	digest := types.ForkDigest{1, 2, 3, 4}
	types.RegisterForkMapping("beacon_block", digest, func() interface{} { return &fakeBlock{} })

	ctor, ok := types.ConstructorForDigest("beacon_block", digest)
	require.True(t, ok)
	assert.IsType(t, &fakeBlock{}, ctor())

	_, ok = types.ConstructorForDigest("beacon_block", types.ForkDigest{9, 9, 9, 9})
	assert.False(t, ok)

	_, ok = types.ConstructorForDigest("unknown_message", digest)
	assert.False(t, ok)
}

func TestRegisterForkMapping_DuplicatePanics(t *testing.T) {
	types.ResetForkMappings()
	digest := types.ForkDigest{5, 5, 5, 5}
	types.RegisterForkMapping("beacon_block", digest, func() interface{} { return &fakeBlock{} })

	assert.Panics(t, func() {
		types.RegisterForkMapping("beacon_block", digest, func() interface{} { return &fakeBlock{} })
	})
}

func TestRegisterRPCTopic_RPCTopicForType(t *testing.T) {
	types.RegisterRPCTopic("/eth2/beacon_chain/req/status/1", &fakeBlock{})

	id, ok := types.RPCTopicForType(reflect.TypeOf(&fakeBlock{}))
	require.True(t, ok)
	assert.Equal(t, "/eth2/beacon_chain/req/status/1", id)

	_, ok = types.RPCTopicForType(reflect.TypeOf(0))
	assert.False(t, ok)
}
