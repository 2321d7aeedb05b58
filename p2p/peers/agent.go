package peers

import (
	"strings"

	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
)

// agentSubstrings maps a lowercased substring of a libp2p AgentVersion string to its client
// classification (spec §6 "Agent detection"). Order doesn't matter: substrings are distinct.
var agentSubstrings = map[string]peerdata.AgentClient{
	"lighthouse": peerdata.AgentLighthouse,
	"prysm":      peerdata.AgentPrysm,
	"teku":       peerdata.AgentTeku,
	"lodestar":   peerdata.AgentLodestar,
	"grandine":   peerdata.AgentGrandine,
	"nimbus":     peerdata.AgentNimbus,
}

// ClassifyAgent lowercases agentVersion and matches it against the known client substrings,
// returning AgentUnknown when nothing matches.
func ClassifyAgent(agentVersion string) peerdata.AgentClient {
	lower := strings.ToLower(agentVersion)
	for substr, client := range agentSubstrings {
		if strings.Contains(lower, substr) {
			return client
		}
	}
	return peerdata.AgentUnknown
}
