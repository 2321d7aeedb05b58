package reqresp_test

import (
	"testing"

	"github.com/prysmaticlabs/beacon-p2p/reqresp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoodbyeReason_RoundTrip(t *testing.T) {
	for _, reason := range []reqresp.GoodbyeReason{
		reqresp.GoodbyeClientShutDown,
		reqresp.GoodbyeIrrelevantNetwork,
		reqresp.GoodbyeFaultOrError,
		reqresp.GoodbyePeerScoreLow,
	} {
		payload, err := reason.MarshalSSZ()
		require.NoError(t, err)
		var got reqresp.GoodbyeReason
		require.NoError(t, got.UnmarshalSSZ(payload))
		assert.Equal(t, reason, got)
	}
}

func TestGoodbyeReason_ReasonName(t *testing.T) {
	assert.Equal(t, "ClientShutDown", reqresp.GoodbyeClientShutDown.ReasonName())
	assert.Equal(t, "PeerScoreLow", reqresp.GoodbyePeerScoreLow.ReasonName())
	assert.Equal(t, "ImplementationPrivate", reqresp.GoodbyeReason(200).ReasonName())
	assert.Equal(t, "Unknown", reqresp.GoodbyeReason(99).ReasonName())
}
