// Package mesh implements the periodic gossip mesh monitor (spec §4.10): it scores each subnet
// topic against the gossipsub degree targets and surfaces a "needy subnets" bitfield the
// discovery adapter biases its queries with. SelectTrimTargets ranks peers for connection
// trimming, but the scan loop does not call it and the monitor itself never trims. Grounded on the teacher's beacon-chain/p2p/subnets.go peer-count polling style
// (pubsub.ListPeers as the mesh-size proxy) and gossip_scoring_params.go's scoring shape.
package mesh

import (
	"context"
	"sort"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prysmaticlabs/beacon-p2p/gossip"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "mesh")

// ScanInterval is how often the monitor re-evaluates subnet health (spec §4.10 "every ~5s").
const ScanInterval = 5 * time.Second

// subscribedFractionExclude drops from the trimming score any topic in which more than this
// fraction of the trim candidates participate, to avoid biasing against universally-subscribed
// topics (spec §4.10).
const subscribedFractionExclude = 0.75

// stabilityWeight is the fixed multiplier on a peer's stability-subnet count in the trim score
// (spec §4.10 "10×stabilitySubnetCount").
const stabilityWeight = 10

// meshScoreNumerator / subscribedScoreNumerator are the gossip-weighted-mean numerators for
// mesh-member and merely-subscribed topics respectively (spec §4.10).
const (
	meshScoreNumerator       = 5000
	subscribedScoreNumerator = 1000
)

// TopicPeers is the narrow pubsub surface the monitor needs: which peers are known for a topic,
// and which topics are joined. It has no query for actual mesh membership, so classify uses the
// topic peer count for MeshPeerCount as well, and BelowD always equals LowOutgoing.
type TopicPeers interface {
	// ListPeers returns every peer pubsub currently associates with topic.
	ListPeers(topic string) []peer.ID
	// GetTopics returns every topic currently joined.
	GetTopics() []string
}

// PeerDirection reports whether pid's connection to a topic is outbound, used to derive
// outbound-mesh counts (pubsub's public API does not expose per-topic direction directly).
type PeerDirection func(pid peer.ID) (outbound bool, ok bool)

// PeerScore reports a peer's current per-topic gossipsub score component.
type PeerScore func(pid peer.ID, topic string) float64

// StabilitySubnetCount reports how many stability subnets pid has committed to.
type StabilitySubnetCount func(pid peer.ID) int

// IsDirect reports whether pid is an operator-configured direct peer, exempt from trimming.
type IsDirect func(pid peer.ID) bool

// MetadataKnownSince reports when pid's metadata was first learned, or ok=false if unknown yet
// (used for the new-peer trimming grace period).
type MetadataKnownSince func(pid peer.ID) (since time.Time, ok bool)

// Config bundles every external dependency the monitor needs beyond the pubsub handle itself.
type Config struct {
	Direction      PeerDirection
	Score          PeerScore
	Stability      StabilitySubnetCount
	Direct         IsDirect
	MetadataSince  MetadataKnownSince
	NewPeerGrace   time.Duration
	SubnetTopics   func() map[uint64]string // subnet index -> full topic name, current fork
	DLow, DHigh    int
	DOut           int
	OnNeedySubnets func(needy []uint64)
}

// Monitor runs the periodic scan described in spec §4.10.
type Monitor struct {
	pubsub TopicPeers
	cfg    Config

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor builds a Monitor over pubsub using cfg, filling DLow/DHigh/DOut with the package
// defaults from gossip.DLow/DHigh/DOut if left zero.
func NewMonitor(pubsub TopicPeers, cfg Config) *Monitor {
	if cfg.DLow == 0 {
		cfg.DLow = gossip.DLow
	}
	if cfg.DHigh == 0 {
		cfg.DHigh = gossip.DHigh
	}
	if cfg.DOut == 0 {
		cfg.DOut = gossip.DOut
	}
	if cfg.NewPeerGrace == 0 {
		cfg.NewPeerGrace = time.Minute
	}
	return &Monitor{pubsub: pubsub, cfg: cfg, done: make(chan struct{})}
}

// Start launches the periodic scan loop until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.loop(ctx)
}

// Stop cancels the scan loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

// SubnetHealth is one subnet topic's classification from a single scan.
type SubnetHealth struct {
	Subnet          uint64
	Topic           string
	TopicPeerCount  int
	MeshPeerCount   int
	OutboundMesh    int
	LowOutgoing     bool
	BelowD          bool
	BelowDOut       bool
	NotHighOutgoing bool
}

// scan implements spec §4.10's periodic evaluation: classify every subnet topic, derive the
// needy-subnets bitfield in priority order, and pass it to OnNeedySubnets. It does not invoke
// trimming.
func (m *Monitor) scan() {
	if m.cfg.SubnetTopics == nil {
		return
	}
	subnets := m.cfg.SubnetTopics()
	healths := make([]SubnetHealth, 0, len(subnets))
	for idx, topic := range subnets {
		healths = append(healths, m.classify(idx, topic))
	}

	needy := m.needySubnets(healths)
	if len(needy) > 0 && m.cfg.OnNeedySubnets != nil {
		m.cfg.OnNeedySubnets(needy)
	}
}

func (m *Monitor) classify(subnet uint64, topic string) SubnetHealth {
	peers := m.pubsub.ListPeers(topic)
	outboundMesh := 0
	if m.cfg.Direction != nil {
		for _, pid := range peers {
			if outbound, ok := m.cfg.Direction(pid); ok && outbound {
				outboundMesh++
			}
		}
	}
	return SubnetHealth{
		Subnet:          subnet,
		Topic:           topic,
		TopicPeerCount:  len(peers),
		MeshPeerCount:   len(peers),
		OutboundMesh:    outboundMesh,
		LowOutgoing:     len(peers) < m.cfg.DLow,
		BelowD:          len(peers) < m.cfg.DLow,
		BelowDOut:       outboundMesh < m.cfg.DOut,
		NotHighOutgoing: len(peers) < m.cfg.DHigh,
	}
}

// needySubnets returns subnet indices ordered lowOutgoing > belowD > belowDOut > notHighOutgoing
// (spec §4.10's stated preference order), each subnet appearing once at its highest-priority
// unmet condition.
func (m *Monitor) needySubnets(healths []SubnetHealth) []uint64 {
	tiers := [4][]uint64{}
	for _, h := range healths {
		switch {
		case h.LowOutgoing:
			tiers[0] = append(tiers[0], h.Subnet)
		case h.BelowD:
			tiers[1] = append(tiers[1], h.Subnet)
		case h.BelowDOut:
			tiers[2] = append(tiers[2], h.Subnet)
		case h.NotHighOutgoing:
			tiers[3] = append(tiers[3], h.Subnet)
		}
	}
	var out []uint64
	for _, tier := range tiers {
		sort.Slice(tier, func(i, j int) bool { return tier[i] < tier[j] })
		out = append(out, tier...)
	}
	return out
}
