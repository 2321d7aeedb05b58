package mesh

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"
)

func sizeOfConst(n int) func(topic string, inMesh bool) int {
	return func(string, bool) int { return n }
}

func TestSelectTrimTargets_NoExcessReturnsNil(t *testing.T) {
	m := NewMonitor(&fakeTopicPeers{}, Config{})
	got := m.SelectTrimTargets(nil, 0, sizeOfConst(10), time.Now())
	require.Nil(t, got)
}

func TestSelectTrimTargets_ExcludesDirectPeers(t *testing.T) {
	direct := randPeerID(t)
	indirect := randPeerID(t)
	m := NewMonitor(&fakeTopicPeers{}, Config{
		Direct: func(pid peer.ID) bool { return pid == direct },
	})

	candidates := []TrimCandidate{
		{ID: direct, Memberships: []TopicMembership{{Topic: "t", InMesh: true}}},
		{ID: indirect, Memberships: []TopicMembership{{Topic: "t", InMesh: true}}},
	}
	got := m.SelectTrimTargets(candidates, 5, sizeOfConst(10), time.Now())
	require.Len(t, got, 1)
	require.Equal(t, indirect, got[0])
}

func TestSelectTrimTargets_RespectsNewPeerGrace(t *testing.T) {
	now := time.Now()
	newPeer := randPeerID(t)
	oldPeer := randPeerID(t)

	m := NewMonitor(&fakeTopicPeers{}, Config{
		NewPeerGrace: time.Minute,
		MetadataSince: func(pid peer.ID) (time.Time, bool) {
			if pid == newPeer {
				return now, true
			}
			return now.Add(-time.Hour), true
		},
	})

	candidates := []TrimCandidate{
		{ID: newPeer, Memberships: []TopicMembership{{Topic: "t", InMesh: true}}},
		{ID: oldPeer, Memberships: []TopicMembership{{Topic: "t", InMesh: true}}},
	}
	got := m.SelectTrimTargets(candidates, 5, sizeOfConst(10), now)
	require.Len(t, got, 1)
	require.Equal(t, oldPeer, got[0])
}

func TestSelectTrimTargets_CapsAtExcess(t *testing.T) {
	m := NewMonitor(&fakeTopicPeers{}, Config{})
	candidates := make([]TrimCandidate, 5)
	for i := range candidates {
		candidates[i] = TrimCandidate{ID: randPeerID(t), Memberships: []TopicMembership{{Topic: "t", InMesh: true}}}
	}
	got := m.SelectTrimTargets(candidates, 2, sizeOfConst(10), time.Now())
	require.Len(t, got, 2)
}

func TestSelectTrimTargets_LowerScoredPeersTrimmedFirst(t *testing.T) {
	weak := randPeerID(t)
	strong := randPeerID(t)

	m := NewMonitor(&fakeTopicPeers{}, Config{
		Stability: func(pid peer.ID) int {
			if pid == strong {
				return 10
			}
			return 0
		},
	})

	candidates := []TrimCandidate{
		{ID: weak, Memberships: []TopicMembership{{Topic: "t", InMesh: true}}},
		{ID: strong, Memberships: []TopicMembership{{Topic: "t", InMesh: true}}},
	}
	got := m.SelectTrimTargets(candidates, 1, sizeOfConst(10), time.Now())
	require.Len(t, got, 1)
	require.Equal(t, weak, got[0], "the peer with the lower stability weight should be trimmed first")
}
