package mesh

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randPeerID(t *testing.T) peer.ID {
	t.Helper()
	p, err := test.RandPeerID()
	require.NoError(t, err)
	return p
}

type fakeTopicPeers struct {
	byTopic map[string][]peer.ID
}

func (f *fakeTopicPeers) ListPeers(topic string) []peer.ID { return f.byTopic[topic] }
func (f *fakeTopicPeers) GetTopics() []string {
	out := make([]string, 0, len(f.byTopic))
	for t := range f.byTopic {
		out = append(out, t)
	}
	return out
}

func TestMonitor_NeedySubnetsPriorityOrder(t *testing.T) {
	lowPeer := randPeerID(t)
	okPeers := make([]peer.ID, 8)
	for i := range okPeers {
		okPeers[i] = randPeerID(t)
	}

	pubsub := &fakeTopicPeers{byTopic: map[string][]peer.ID{
		"/eth2/subnet0": {lowPeer},  // below DLow=6 -> lowOutgoing+belowD
		"/eth2/subnet1": okPeers,    // 8 peers, no outbound (no Direction set): belowDOut+notHighOutgoing
	}}

	m := NewMonitor(pubsub, Config{
		SubnetTopics: func() map[uint64]string {
			return map[uint64]string{0: "/eth2/subnet0", 1: "/eth2/subnet1"}
		},
	})

	var needy []uint64
	m.cfg.OnNeedySubnets = func(n []uint64) { needy = n }
	m.scan()

	require.Len(t, needy, 2)
	assert.Equal(t, uint64(0), needy[0], "lowOutgoing subnet must be preferred first")
	assert.Equal(t, uint64(1), needy[1])
}

func TestMonitor_SelectTrimTargetsExcludesDirectAndNewPeers(t *testing.T) {
	direct := randPeerID(t)
	fresh := randPeerID(t)
	stale := randPeerID(t)

	now := time.Now()
	m := NewMonitor(&fakeTopicPeers{}, Config{
		Direct: func(pid peer.ID) bool { return pid == direct },
		MetadataSince: func(pid peer.ID) (time.Time, bool) {
			if pid == fresh {
				return now, true
			}
			return now.Add(-time.Hour), true
		},
		NewPeerGrace: time.Minute,
	})

	candidates := []TrimCandidate{
		{ID: direct},
		{ID: fresh},
		{ID: stale},
	}
	targets := m.SelectTrimTargets(candidates, 5, func(string, bool) int { return 1 }, now)
	require.Len(t, targets, 1)
	assert.Equal(t, stale, targets[0])
}

func TestMonitor_SelectTrimTargetsRanksLowestScoreFirst(t *testing.T) {
	high := randPeerID(t)
	low := randPeerID(t)
	now := time.Now()

	m := NewMonitor(&fakeTopicPeers{}, Config{
		Stability: func(pid peer.ID) int {
			if pid == high {
				return 5
			}
			return 0
		},
		MetadataSince: func(peer.ID) (time.Time, bool) { return now.Add(-time.Hour), true },
		NewPeerGrace:  time.Minute,
	})

	candidates := []TrimCandidate{{ID: high}, {ID: low}}
	targets := m.SelectTrimTargets(candidates, 1, func(string, bool) int { return 1 }, now)
	require.Len(t, targets, 1)
	assert.Equal(t, low, targets[0], "the peer with the lower trim score should be selected first")
}
