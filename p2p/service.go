// Package p2p is the C12 orchestrator: it owns the libp2p host, wires the peer-record store,
// Req/Resp engine and dispatcher, gossip pipeline, connector pool, and mesh monitor together,
// and drives their lifecycle (spec §4.12). Grounded on the teacher's beacon-chain/p2p/service.go
// construction and start/stop sequencing.
package p2p

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net"
	"sync"
	"time"

	gethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/connector"
	"github.com/prysmaticlabs/beacon-p2p/gossip"
	"github.com/prysmaticlabs/beacon-p2p/mesh"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
	"github.com/prysmaticlabs/beacon-p2p/reqresp"
	"github.com/prysmaticlabs/go-bitfield"
)

// shutdownTimeout bounds Stop's cancellation sweep (spec §4.12 "5s timeout with
// error-swallowing").
const shutdownTimeout = 5 * time.Second

// Service is the concrete P2P implementation: the running node's networking core.
type Service struct {
	cfg *Config

	ctx    context.Context
	cancel context.CancelFunc

	host host.Host
	enc  encoder.NetworkEncoding

	status   *peers.Status
	registry *reqresp.Registry
	engine   *reqresp.Engine
	dispatch *reqresp.Dispatcher
	pinger   *reqresp.MetadataPinger
	goodbye  *reqresp.GoodbyeSender

	ps       *pubsub.PubSub
	gossip   *gossip.Pipeline
	filter   *gossip.SubscriptionFilter
	joinedMu sync.Mutex

	seen      *connector.SeenTable
	peerPool  *connector.PeerPool
	pool      *connector.Pool
	mesh      *mesh.Monitor
	discovery *DiscoveryAdapter
	dv5Listener Listener

	privKey *ecdsa.PrivateKey

	subnetsLock     map[uint64]*sync.RWMutex
	subnetsLockLock sync.Mutex

	digest [4]byte

	metadataMu     sync.RWMutex
	metadataSeq    uint64
	attnets        bitfield.Bitvector64
	syncnets       bitfield.Bitvector4
	custodySubnets uint64
}

// NewService builds every component described by SPEC_FULL.md's C1-C11 but does not start any
// background loop; call Start for that.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		subnetsLock: make(map[uint64]*sync.RWMutex),
	}

	if cfg.MaxInboundPeers == 0 {
		cfg.MaxInboundPeers = 30
	}
	if cfg.MaxOutboundPeers == 0 {
		cfg.MaxOutboundPeers = 20
	}
	if cfg.OneSlot == 0 {
		cfg.OneSlot = 12 * time.Second
	}
	if cfg.OneEpoch == 0 {
		cfg.OneEpoch = 32 * cfg.OneSlot
	}

	privKey, err := loadOrCreatePrivateKey(cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	s.privKey = privKey

	ip := resolveListenIP(cfg)
	opts, err := buildOptions(cfg, ip, privKey)
	if err != nil {
		cancel()
		return nil, err
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not build libp2p host")
	}
	s.host = h
	s.enc = encoder.SszNetworkEncoder{UseSnappyCompression: true}
	s.attnets = bitfield.NewBitvector64()
	s.syncnets = make(bitfield.Bitvector4, 1)

	s.status = peers.NewStatus(&peers.Config{})
	s.registry = reqresp.NewRegistry()
	s.engine = reqresp.NewEngine(h, s.enc, s.status, nil)
	s.dispatch = reqresp.NewDispatcher(s.registry, s.enc, s.status, reqresp.DefaultRespTimeout)

	setPubSubParameters()
	s.filter = gossip.NewSubscriptionFilter("00000000")
	ps, err := gossip.NewPubSub(ctx, h, pubsub.WithSubscriptionFilter(s.filter))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not build pubsub")
	}
	s.ps = ps
	s.gossip = gossip.NewPipeline(ps, s.enc)

	s.seen = connector.NewSeenTable()
	s.peerPool = connector.NewPeerPool(int(cfg.MaxInboundPeers), int(cfg.MaxOutboundPeers), scoreBanThreshold, s.score64)
	s.pool = connector.NewPool(&hostDialer{host: h}, s.peerPool, s.seen)

	if !cfg.NoDiscovery {
		listener, err := createListener(ip, privKey, cfg)
		if err != nil {
			log.WithError(err).Error("Could not start discovery v5, continuing without it")
		} else {
			s.dv5Listener = listener
			s.discovery = NewDiscoveryAdapter(listener, s.pool)
		}
	}

	s.mesh = mesh.NewMonitor(s.ps, mesh.Config{
		Stability:      s.stabilitySubnetCount,
		Direct:         s.isDirectPeer,
		MetadataSince:  s.metadataKnownSince,
		NewPeerGrace:   time.Minute,
		SubnetTopics:   s.currentSubnetTopics,
		OnNeedySubnets: s.onNeedySubnets,
	})

	s.mountProtocols()

	return s, nil
}

// scoreBanThreshold rejects new connections from peers already this deep in the negative (spec
// §4.7 "reject new connections from peers already below the ban threshold").
const scoreBanThreshold = -100

// Start launches connector workers, the mesh monitor, the metadata pinger and the metrics,
// registers the connection notifiee, and starts the discovery loop when discovery is enabled
// (spec §4.12). Protocols are mounted earlier, by NewService; the mesh monitor does not trim
// connections.
func (s *Service) Start() {
	logIPAddr(s.host.ID(), s.host.Addrs()...)
	s.pool.Start(s.ctx)
	s.mesh.Start(s.ctx)
	s.pinger.Start(s.ctx)
	registerMetrics(s)

	s.host.Network().Notify(&networkNotifiee{s: s})

	if s.discovery != nil {
		go s.discoveryLoop()
	}

	log.WithField("peerID", s.host.ID().Pretty()).Info("Started p2p service")
}

// Stop cancels every loop, closes discovery, and shuts down the switch, bounded by
// shutdownTimeout with error-swallowing (spec §4.12).
func (s *Service) Stop() error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.cancel()
		s.pool.Stop()
		s.mesh.Stop()
		if s.pinger != nil {
			s.pinger.Stop()
		}
		if s.dv5Listener != nil {
			s.dv5Listener.Close()
		}
		if err := s.host.Close(); err != nil {
			log.WithError(err).Warn("Error closing host")
		}
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("Timed out waiting for p2p service to stop cleanly")
	}
	return nil
}

// Encoding implements EncodingProvider.
func (s *Service) Encoding() encoder.NetworkEncoding { return s.enc }

// PubSub implements PubSubProvider.
func (s *Service) PubSub() *pubsub.PubSub { return s.ps }

// SetStreamHandler implements SetStreamHandler by mounting protocolID on the underlying host.
func (s *Service) SetStreamHandler(protocolID string, handler network.StreamHandler) {
	s.host.SetStreamHandler(protocol.ID(protocolID), handler)
}

// Disconnect implements PeerManager: sends a best-effort goodbye, then closes every connection
// to pid and records the disposition in the seen-table.
func (s *Service) Disconnect(pid peer.ID, reason string) error {
	if s.goodbye != nil {
		s.goodbye.Send(s.ctx, pid, goodbyeReasonFor(reason))
	}
	s.seen.Mark(pid, connector.DisconnectReason(reason))
	s.peerPool.MarkDead(pid)
	return s.host.Network().ClosePeer(pid)
}

func goodbyeReasonFor(reason string) reqresp.GoodbyeReason {
	switch connector.DisconnectReason(reason) {
	case connector.ReasonIrrelevantNetwork:
		return reqresp.GoodbyeIrrelevantNetwork
	case connector.ReasonScoreLow:
		return reqresp.GoodbyePeerScoreLow
	case connector.ReasonFaultOrError:
		return reqresp.GoodbyeFaultOrError
	default:
		return reqresp.GoodbyeClientShutDown
	}
}

func (s *Service) forkDigest() string { return fmt.Sprintf("%x", s.digest) }

func (s *Service) score64(pid peer.ID) int64 { return int64(s.status.Scorer().Score(pid)) }

func (s *Service) isDirectPeer(pid peer.ID) bool {
	for _, addr := range s.cfg.StaticPeers {
		if addr == pid.String() {
			return true
		}
	}
	return false
}

// metadataKnownSince supplies mesh.Config.MetadataSince with pid's ChainStateLastUpdated time,
// which is refreshed on every connection-state change and status update; it is not the time
// pid's metadata was received.
func (s *Service) metadataKnownSince(pid peer.ID) (time.Time, bool) {
	last, err := s.status.ChainStateLastUpdated(pid)
	if err != nil {
		return time.Time{}, false
	}
	return last, true
}

func (s *Service) stabilitySubnetCount(pid peer.ID) int {
	md, err := s.status.Metadata(pid)
	if err != nil || md == nil {
		return 0
	}
	count := 0
	for i := 0; i < len(md.Attnets)*8; i++ {
		if md.Attnets.BitAt(uint64(i)) {
			count++
		}
	}
	return count
}

func (s *Service) currentSubnetTopics() map[uint64]string {
	topics := make(map[uint64]string)
	digest := s.forkDigest()
	for i := uint64(0); i < 64; i++ {
		topics[i] = fmt.Sprintf("/eth2/%s/beacon_attestation_%d", digest, i) + s.enc.ProtocolSuffix()
	}
	return topics
}

func (s *Service) onNeedySubnets(needy []uint64) {
	if s.discovery == nil || len(needy) == 0 {
		return
	}
	filter := make(SubnetBitfield, len(needy))
	for _, idx := range needy {
		filter[idx] = true
	}
	s.discovery.FindPeers(s.ctx, filter, 16)
}

func (s *Service) updateTopicPeerCounts() {
	for topic, fn := range topicPeerCountGauges(s) {
		p2pTopicPeerCount.WithLabelValues(topic).Set(fn())
	}
}

func topicPeerCountGauges(s *Service) map[string]func() float64 {
	out := make(map[string]func() float64)
	for _, topic := range GossipTypeMapping {
		t := topic
		out[t] = func() float64 { return float64(len(s.ps.ListPeers(t + s.enc.ProtocolSuffix()))) }
	}
	return out
}

func (s *Service) discoveryLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.peerPool.Len() >= int(s.cfg.MaxOutboundPeers) {
				continue
			}
			s.discovery.FindPeers(s.ctx, nil, 16)
		}
	}
}

func resolveListenIP(cfg *Config) net.IP {
	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			return ip
		}
	}
	return net.IPv4zero
}

func loadOrCreatePrivateKey(cfg *Config) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return gethCrypto.HexToECDSA(cfg.PrivateKey)
	}
	return gethCrypto.GenerateKey()
}

// hostDialer adapts a libp2p host.Host to the connector.Dialer contract.
type hostDialer struct {
	host host.Host
}

func (d *hostDialer) Connect(ctx context.Context, pid peer.ID, addr ma.Multiaddr) error {
	return d.host.Connect(ctx, peer.AddrInfo{ID: pid, Addrs: []ma.Multiaddr{addr}})
}

// networkNotifiee drives the peer-record store's connection state machine off real libp2p
// connection events (spec §4.3).
type networkNotifiee struct {
	s *Service
}

func (n *networkNotifiee) Connected(_ network.Network, c network.Conn) {
	pid := c.RemotePeer()
	dir := connector.Inbound
	if c.Stat().Direction == network.DirOutbound {
		dir = connector.Outbound
	}
	result := n.s.peerPool.Admit(pid, dir)
	if result != connector.Success {
		log.WithField("peer", pid).WithField("result", result.String()).Debug("Rejecting connection")
		_ = n.s.host.Network().ClosePeer(pid)
		return
	}

	if state, err := n.s.status.ConnectionState(pid); err == nil && state.IsActive() {
		n.s.status.RecordDuplicateConnection(pid)
		_ = c.Close()
		return
	}

	n.s.status.Add(nil, pid, c.RemoteMultiaddr(), c.Stat().Direction)
	if err := n.s.status.SetConnectionState(pid, peerdata.StateConnecting); err != nil {
		log.WithError(err).Debug("Could not record connecting state")
		return
	}
	if err := n.s.registry.RunOnPeerConnected(n.s.ctx, pid); err != nil {
		log.WithError(err).Debug("Protocol onPeerConnected hook failed")
	}
	if err := n.s.status.SetConnectionState(pid, peerdata.StateConnected); err != nil {
		log.WithError(err).Debug("Could not record connected state")
	}
}

func (n *networkNotifiee) Disconnected(_ network.Network, c network.Conn) {
	pid := c.RemotePeer()
	dir := connector.Inbound
	if c.Stat().Direction == network.DirOutbound {
		dir = connector.Outbound
	}
	n.s.peerPool.Release(pid, dir)
	if n.s.peerPool.IsConnected(pid) {
		return
	}
	_ = n.s.status.SetConnectionState(pid, peerdata.StateDisconnecting)
	if err := n.s.status.SetConnectionState(pid, peerdata.StateDisconnected); err != nil {
		log.WithError(err).Debug("Could not record disconnection state")
	}
	// drainID correlates this peer's one-shot disconnected-completion log lines (spec §3 "a
	// one-shot disconnected completion signal") across every protocol's OnPeerDisconnected hook.
	drainID := uuid.NewString()
	log.WithField("peer", pid).WithField("drainID", drainID).Debug("Draining protocol handlers before removal")
	n.s.registry.RunOnPeerDisconnected(n.s.ctx, pid)
	n.s.status.Quota().Remove(pid)
}

func (n *networkNotifiee) Listen(network.Network, ma.Multiaddr)      {}
func (n *networkNotifiee) ListenClose(network.Network, ma.Multiaddr) {}
