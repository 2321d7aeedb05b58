package peers_test

import (
	"testing"

	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
	"github.com/stretchr/testify/assert"
)

func TestClassifyAgent(t *testing.T) {
	cases := map[string]peerdata.AgentClient{
		"Lighthouse/v4.5.0-abcdef":  peerdata.AgentLighthouse,
		"lighthouse/v4.5.0":         peerdata.AgentLighthouse,
		"prysm/v4.1.0":              peerdata.AgentPrysm,
		"teku/24.1.0":               peerdata.AgentTeku,
		"js-libp2p/lodestar/v1.0.0": peerdata.AgentLodestar,
		"grandine/0.3.0":            peerdata.AgentGrandine,
		"Nimbus/v23.10":             peerdata.AgentNimbus,
		"some-other-client/1.0":     peerdata.AgentUnknown,
		"":                          peerdata.AgentUnknown,
	}
	for agent, want := range cases {
		assert.Equal(t, want, peers.ClassifyAgent(agent), "agent=%q", agent)
	}
}
