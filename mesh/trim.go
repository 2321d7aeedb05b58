package mesh

import (
	"sort"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
)

// TopicMembership describes, for one connected peer, every topic it participates in and whether
// that participation is a mesh membership (vs. merely subscribed/known to pubsub).
type TopicMembership struct {
	Topic  string
	InMesh bool
}

// TrimCandidate is one peer considered for trimming, with the topic memberships needed to score
// it (spec §4.10's gossip-weighted mean).
type TrimCandidate struct {
	ID          peer.ID
	Memberships []TopicMembership
}

// topicPopularity counts, across all trim candidates, how many peers participate in each topic —
// used to exclude topics subscribed by the overwhelming majority (spec §4.10).
func topicPopularity(candidates []TrimCandidate) map[string]int {
	counts := make(map[string]int)
	for _, c := range candidates {
		for _, m := range c.Memberships {
			counts[m.Topic]++
		}
	}
	return counts
}

// meshSize/subscribedSize give the denominators for the gossip-weighted mean (spec §4.10: 5000
// divided by mesh-peer count, 1000 divided by subscribed-peer count); the caller supplies these
// via the pubsub-backed TopicPeers already used by the scan loop.
type sizeLookup func(topic string, inMesh bool) int

// score implements spec §4.10's excess-peer trim scoring: 10×stabilitySubnetCount plus the mean,
// over the peer's non-excluded topic memberships, of a gossip weight (5000/meshSize for mesh
// membership, 1000/subscribedSize otherwise).
func (m *Monitor) score(candidate TrimCandidate, popularity map[string]int, totalPeers int, sizeOf sizeLookup) float64 {
	var base float64
	if m.cfg.Stability != nil {
		base = float64(stabilityWeight * m.cfg.Stability(candidate.ID))
	}

	var sum float64
	var n int
	for _, mem := range candidate.Memberships {
		if totalPeers > 0 && float64(popularity[mem.Topic])/float64(totalPeers) > subscribedFractionExclude {
			continue
		}
		size := sizeOf(mem.Topic, mem.InMesh)
		if size <= 0 {
			continue
		}
		if mem.InMesh {
			sum += meshScoreNumerator / float64(size)
		} else {
			sum += subscribedScoreNumerator / float64(size)
		}
		n++
	}
	if n > 0 {
		base += sum / float64(n)
	}
	return base
}

// SelectTrimTargets ranks candidates by ascending trim score (lowest-value peers first) and
// returns up to excess of them, excluding direct peers and peers still inside the new-peer grace
// period (spec §4.10: "direct peers are never trimmed"; "grace period... prevents new-peer
// churn").
func (m *Monitor) SelectTrimTargets(candidates []TrimCandidate, excess int, sizeOf sizeLookup, now time.Time) []peer.ID {
	if excess <= 0 {
		return nil
	}
	popularity := topicPopularity(candidates)
	total := len(candidates)

	type scored struct {
		id    peer.ID
		value float64
	}
	eligible := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if m.cfg.Direct != nil && m.cfg.Direct(c.ID) {
			continue
		}
		if m.cfg.MetadataSince != nil {
			if since, ok := m.cfg.MetadataSince(c.ID); !ok || now.Sub(since) < m.cfg.NewPeerGrace {
				continue
			}
		}
		eligible = append(eligible, scored{id: c.ID, value: m.score(c, popularity, total, sizeOf)})
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].value < eligible[j].value })
	if excess > len(eligible) {
		excess = len(eligible)
	}
	out := make([]peer.ID, excess)
	for i := 0; i < excess; i++ {
		out[i] = eligible[i].id
	}
	return out
}
