package gossip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnappyEncodeDecode_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("attestation-payload"), 100)
	encoded := snappyEncode(payload)
	assert.NotEqual(t, payload, encoded)

	decoded, err := snappyDecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestSnappyDecode_OversizedRejected(t *testing.T) {
	huge := bytes.Repeat([]byte{0x42}, GossipMaxSize+1)
	encoded := snappyEncode(huge)

	_, err := snappyDecode(encoded)
	assert.ErrorIs(t, err, errPayloadTooLarge)
}

func TestSnappyDecode_MalformedInput(t *testing.T) {
	_, err := snappyDecode([]byte{0xff, 0xff, 0xff, 0xff, 0xff})
	assert.Error(t, err)
}
