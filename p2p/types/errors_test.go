package types_test

import (
	"testing"

	"github.com/prysmaticlabs/beacon-p2p/p2p/types"
	"github.com/stretchr/testify/assert"
)

func TestErrorKind_IsProtocolViolation(t *testing.T) {
	benign := []types.ErrorKind{
		types.ErrKindBrokenConnection,
		types.ErrKindUnexpectedEOF,
		types.ErrKindPotentiallyExpectedEOF,
		types.ErrKindStreamOpenTimeout,
		types.ErrKindReadResponseTimeout,
	}
	for _, k := range benign {
		assert.False(t, k.IsProtocolViolation(), "kind %d should not be a protocol violation", k)
	}

	violations := []types.ErrorKind{
		types.ErrKindInvalidResponseCode,
		types.ErrKindInvalidSnappyBytes,
		types.ErrKindInvalidSszBytes,
		types.ErrKindInvalidSizePrefix,
		types.ErrKindZeroSizePrefix,
		types.ErrKindSizePrefixOverflow,
		types.ErrKindInvalidContextBytes,
		types.ErrKindResponseChunkOverflow,
		types.ErrKindUnknownError,
	}
	for _, k := range violations {
		assert.True(t, k.IsProtocolViolation(), "kind %d should be a protocol violation", k)
	}
}

func TestRPCError_AsRPCError(t *testing.T) {
	err := types.NewRPCError(types.ErrKindStreamOpenTimeout, "timed out")
	assert.Equal(t, "timed out", err.Error())

	got, ok := types.AsRPCError(err)
	assert.True(t, ok)
	assert.Equal(t, types.ErrKindStreamOpenTimeout, got.Kind)

	_, ok = types.AsRPCError(types.ErrRateLimited)
	assert.False(t, ok)
}

func TestReceivedErrorResponse_Error(t *testing.T) {
	e := &types.ReceivedErrorResponse{Code: 2, Message: "bad request"}
	assert.Contains(t, e.Error(), "code=2")
	assert.Contains(t, e.Error(), "bad request")
}
