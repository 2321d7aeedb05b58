package encoder

import (
	"bytes"
	"testing"

	"github.com/prysmaticlabs/beacon-p2p/p2p/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	Value []byte
}

func (m *fakeMessage) MarshalSSZ() ([]byte, error) { return m.Value, nil }
func (m *fakeMessage) SizeSSZ() int                { return len(m.Value) }
func (m *fakeMessage) UnmarshalSSZ(data []byte) error {
	m.Value = append([]byte(nil), data...)
	return nil
}

func TestSszNetworkEncoder_RoundTrip(t *testing.T) {
	// Testable property #3 (spec §8): decode(encode(C)) == C for any payload within bound.
	e := SszNetworkEncoder{UseSnappyCompression: true}
	msg := &fakeMessage{Value: bytes.Repeat([]byte{0xab}, 4096)}

	buf := new(bytes.Buffer)
	n, err := e.EncodeWithMaxLength(buf, msg)
	require.NoError(t, err)
	assert.True(t, n > 0)

	out := &fakeMessage{}
	require.NoError(t, e.DecodeWithMaxLength(buf, out))
	assert.Equal(t, msg.Value, out.Value)
}

func TestSszNetworkEncoder_EmptyRequestOmitsChunk(t *testing.T) {
	e := SszNetworkEncoder{UseSnappyCompression: true}
	buf := new(bytes.Buffer)
	n, err := e.EncodeWithMaxLength(buf, &fakeMessage{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, buf.Len())
}

func TestSszNetworkEncoder_SizePrefixOverflowRejectedBeforeDecompression(t *testing.T) {
	// Testable property #4 (spec §8): oversized declared length is rejected without
	// attempting decompression.
	e := SszNetworkEncoder{UseSnappyCompression: true}
	buf := new(bytes.Buffer)
	_, err := buf.Write(varintFor(DefaultMaxChunkSize + 1))
	require.NoError(t, err)
	buf.WriteString("not a valid snappy stream at all")

	out := &fakeMessage{}
	err = e.DecodeWithMaxLength(buf, out)
	require.Error(t, err)
	rpcErr, ok := types.AsRPCError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrKindSizePrefixOverflow, rpcErr.Kind)
}

func TestSszNetworkEncoder_ZeroSizePrefixRejectedWhenNotAllowed(t *testing.T) {
	_, err := readVarint(bytes.NewReader([]byte{0x00}), DefaultMaxChunkSize, false)
	require.Error(t, err)
}

func TestRenderErrorMessage(t *testing.T) {
	assert.Equal(t, "hello", RenderErrorMessage([]byte("hello")))
	assert.Equal(t, "00ff", RenderErrorMessage([]byte{0x00, 0xff}))
}

func TestEncodeResponse_ErrorCodeCarriesBoundedMessage(t *testing.T) {
	e := SszNetworkEncoder{UseSnappyCompression: true}
	buf := new(bytes.Buffer)
	longMsg := bytes.Repeat([]byte{'a'}, MaxErrorMessageLength+50)
	_, err := e.EncodeResponse(buf, errMsgMarshaler(longMsg), ResponseCodeInvalidRequest, nil)
	require.NoError(t, err)

	code, err := ReadResponseCode(buf)
	require.NoError(t, err)
	assert.Equal(t, ResponseCodeInvalidRequest, code)

	rendered, err := e.DecodeErrorMessage(buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rendered), MaxErrorMessageLength)
}

type errMsgMarshaler []byte

func (m errMsgMarshaler) MarshalSSZ() ([]byte, error) { return m, nil }
func (m errMsgMarshaler) SizeSSZ() int                { return len(m) }

func varintFor(v uint64) []byte {
	buf := new(bytes.Buffer)
	_, _ = buf.Write(varintBytes(v))
	return buf.Bytes()
}

func varintBytes(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}
