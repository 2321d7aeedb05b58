package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPayload_RoundTrip(t *testing.T) {
	p := &statusPayload{ForkDigest: [4]byte{0xde, 0xad, 0xbe, 0xef}}
	raw, err := p.MarshalSSZ()
	require.NoError(t, err)
	assert.Equal(t, 4, p.SizeSSZ())

	got := &statusPayload{}
	require.NoError(t, got.UnmarshalSSZ(raw))
	assert.Equal(t, p.ForkDigest, got.ForkDigest)
}

func TestStatusPayload_UnmarshalWrongSize(t *testing.T) {
	p := &statusPayload{}
	assert.ErrorIs(t, p.UnmarshalSSZ([]byte{1, 2, 3}), errStatusSize)
	assert.ErrorIs(t, p.UnmarshalSSZ([]byte{1, 2, 3, 4, 5}), errStatusSize)
}

func TestForkStatusProvider_LocalStatus(t *testing.T) {
	s := &Service{digest: [4]byte{1, 2, 3, 4}}
	provider := &forkStatusProvider{s: s}

	local := provider.LocalStatus()
	got, ok := local.(*statusPayload)
	require.True(t, ok)
	assert.Equal(t, s.digest, got.ForkDigest)

	assert.IsType(t, &statusPayload{}, provider.NewRemoteStatus())
}

func TestForkStatusProvider_IsForkCompatible(t *testing.T) {
	s := &Service{digest: [4]byte{9, 9, 9, 9}}
	provider := &forkStatusProvider{s: s}

	local := provider.LocalStatus()
	matching := &statusPayload{ForkDigest: [4]byte{9, 9, 9, 9}}
	mismatched := &statusPayload{ForkDigest: [4]byte{1, 1, 1, 1}}

	assert.True(t, provider.IsForkCompatible(local, matching))
	assert.False(t, provider.IsForkCompatible(local, mismatched))
}

func TestForkStatusProvider_IsForkCompatible_WrongType(t *testing.T) {
	provider := &forkStatusProvider{s: &Service{}}
	assert.False(t, provider.IsForkCompatible(nil, nil))
}

func TestProtocolIDString(t *testing.T) {
	msg := statusMessage(nil)
	assert.Equal(t, "/eth2/beacon_chain/req/status/1/ssz_snappy", protocolIDString(msg, "/ssz_snappy"))
}

func TestService_LocalMetadata(t *testing.T) {
	s := &Service{}
	s.attnets = make([]byte, 8)
	s.syncnets = make([]byte, 1)
	s.metadataSeq = 3

	md := s.localMetadata()
	assert.Equal(t, uint64(3), md.SeqNumber)
	assert.Equal(t, s.attnets, md.Attnets)
	assert.Equal(t, s.syncnets, md.Syncnets)
}

func TestService_BumpMetadataSeq(t *testing.T) {
	s := &Service{}
	assert.Equal(t, uint64(0), s.metadataSeq)
	s.bumpMetadataSeq()
	s.bumpMetadataSeq()
	assert.Equal(t, uint64(2), s.metadataSeq)
}
