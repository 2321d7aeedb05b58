// Package peers tracks every peer the node has ever connected to at the protocol level: the
// C3 state machine (spec §3, §4.3), the C2 scoring composition, and per-peer metadata. It
// never reaches into the transport itself — callers (the p2p orchestrator, reqresp handlers)
// drive SetConnectionState off real connection events and read back state/score to decide
// whether to keep talking to a peer.
package peers

import (
	"time"

	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/scorers"
)

// ErrPeerUnknown re-exports peerdata.ErrPeerUnknown so callers need only import this package.
var ErrPeerUnknown = peerdata.ErrPeerUnknown

// ErrInvalidTransition is returned when SetConnectionState is asked to make an illegal jump
// in the state machine (spec §4.3 lists the only legal edges).
var ErrInvalidTransition = errors.New("invalid peer connection state transition")

// Status is the peer record store: state machine, metadata, score, and bad-response
// accounting for every peer the node has ever seen (spec §3 "Peer").
type Status struct {
	store   *peerdata.Store
	scorer  *scorers.Service
	quota   *QuotaManager
	maxBadResponses int
}

// Config configures a new Status.
type Config struct {
	MaxBadResponses int
	MaxRequestQuota int64
	ScorerConfig    *scorers.Config
}

// NewStatus builds a Status with its own backing store, scorer, and quota manager.
func NewStatus(cfg *Config) *Status {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxBadResponses == 0 {
		cfg.MaxBadResponses = scorers.DefaultBadResponsesThreshold
	}
	if cfg.MaxRequestQuota == 0 {
		cfg.MaxRequestQuota = 8 * 5 // "8 ops/sec" target over the 5s replenish window (§4.2).
	}
	store := peerdata.NewStore()
	return &Status{
		store:           store,
		scorer:          scorers.NewService(store, cfg.ScorerConfig),
		quota:           NewQuotaManager(cfg.MaxRequestQuota),
		maxBadResponses: cfg.MaxBadResponses,
	}
}

// Scorer exposes the scoring service for components that need to post deltas directly
// (reqresp engine, metadata pinger).
func (p *Status) Scorer() *scorers.Service { return p.scorer }

// Quota exposes the quota manager.
func (p *Status) Quota() *QuotaManager { return p.quota }

// Add registers pid, recording its address, direction, and (optional) ENR. Re-adding an
// already-known peer updates its address/direction/ENR in place rather than erroring — real
// peers reconnect and re-announce themselves constantly, and rejecting that would leak state
// (diverges deliberately from the teacher's earlier "error if peer already exists" version,
// matched instead to the fuller status_test.go behavior where re-Add is expected to merge).
func (p *Status) Add(record *enr.Record, pid peer.ID, address ma.Multiaddr, direction network.Direction) {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	data.Address = address
	data.Direction = direction
	if record != nil {
		data.Enr = record
	}
}

// ENR returns the stored node record for pid, if any.
func (p *Status) ENR(pid peer.ID) (*enr.Record, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return nil, ErrPeerUnknown
	}
	return data.Enr, nil
}

// Address returns the stored multiaddress for pid.
func (p *Status) Address(pid peer.ID) (ma.Multiaddr, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return nil, ErrPeerUnknown
	}
	return data.Address, nil
}

// Direction returns the stored connection direction for pid.
func (p *Status) Direction(pid peer.ID) (network.Direction, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return network.DirUnknown, ErrPeerUnknown
	}
	return data.Direction, nil
}

// legalTransitions enumerates the edges permitted by spec §4.3.
var legalTransitions = map[peerdata.ConnState][]peerdata.ConnState{
	peerdata.StateNone:          {peerdata.StateConnecting},
	peerdata.StateConnecting:    {peerdata.StateConnected, peerdata.StateDisconnecting, peerdata.StateDisconnected},
	peerdata.StateConnected:     {peerdata.StateDisconnecting, peerdata.StateDisconnected},
	peerdata.StateDisconnecting: {peerdata.StateDisconnected},
	peerdata.StateDisconnected:  {peerdata.StateConnecting},
}

// SetConnectionState drives the state machine. It returns ErrInvalidTransition for any edge
// not listed in legalTransitions; callers that hit this on a genuine duplicate connection
// event should use RecordDuplicateConnection instead (spec §4.3 "spurious Connected ...
// count up connections").
func (p *Status) SetConnectionState(pid peer.ID, state peerdata.ConnState) error {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	if data.ConnState != state {
		allowed := false
		for _, next := range legalTransitions[data.ConnState] {
			if next == state {
				allowed = true
				break
			}
		}
		if !allowed {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", data.ConnState, state)
		}
	}
	if state == peerdata.StateConnecting && data.ConnState == peerdata.StateDisconnected {
		// Re-encounter: reset score to 0 until post-handshake increment (spec §4.3).
		data.SetScore(0)
	}
	data.ConnState = state
	data.ChainStateLastUpdated = time.Now()
	if state == peerdata.StateConnecting {
		data.Connections++
	}
	return nil
}

// RecordDuplicateConnection handles a second physical connection arriving for a peer already
// Connecting or Connected: bump the refcount and keep the first logical connection
// authoritative (spec §4.3). It returns nothing; closing the new transport-level connection is
// left to the caller.
func (p *Status) RecordDuplicateConnection(pid peer.ID) {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	data.Connections++
}

// ReleaseConnection decrements the live-connection refcount; once it reaches zero the caller
// should transition the peer to Disconnected (spec §4.3 "State flips to Disconnected only
// when connections = 0").
func (p *Status) ReleaseConnection(pid peer.ID) (remaining int) {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	if data.Connections > 0 {
		data.Connections--
	}
	return data.Connections
}

// ConnectionState returns the current state for pid.
func (p *Status) ConnectionState(pid peer.ID) (peerdata.ConnState, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return peerdata.StateNone, ErrPeerUnknown
	}
	return data.ConnState, nil
}

// filterByState returns every known peer whose state matches pred.
func (p *Status) filterByState(pred func(peerdata.ConnState) bool) []peer.ID {
	p.store.RLock()
	defer p.store.RUnlock()
	var out []peer.ID
	for _, pid := range p.store.Peers() {
		data, ok := p.store.PeerData(pid)
		if ok && pred(data.ConnState) {
			out = append(out, pid)
		}
	}
	return out
}

// Connecting returns peers currently in StateConnecting.
func (p *Status) Connecting() []peer.ID {
	return p.filterByState(func(s peerdata.ConnState) bool { return s == peerdata.StateConnecting })
}

// Connected returns peers currently in StateConnected.
func (p *Status) Connected() []peer.ID {
	return p.filterByState(func(s peerdata.ConnState) bool { return s == peerdata.StateConnected })
}

// Active returns peers that are Connecting or Connected.
func (p *Status) Active() []peer.ID {
	return p.filterByState(peerdata.ConnState.IsActive)
}

// Disconnecting returns peers currently in StateDisconnecting.
func (p *Status) Disconnecting() []peer.ID {
	return p.filterByState(func(s peerdata.ConnState) bool { return s == peerdata.StateDisconnecting })
}

// Disconnected returns peers currently in StateDisconnected.
func (p *Status) Disconnected() []peer.ID {
	return p.filterByState(func(s peerdata.ConnState) bool { return s == peerdata.StateDisconnected })
}

// Inactive returns peers that are Disconnecting or Disconnected.
func (p *Status) Inactive() []peer.ID {
	return p.filterByState(peerdata.ConnState.IsInactive)
}

// All returns every known peer regardless of state.
func (p *Status) All() []peer.ID {
	p.store.RLock()
	defer p.store.RUnlock()
	return p.store.Peers()
}

// Prune removes pid from the store entirely; only valid once the peer is Disconnected and no
// protocol handler still references it (spec §3 Lifecycle).
func (p *Status) Prune(pid peer.ID) {
	p.store.Lock()
	defer p.store.Unlock()
	p.quota.Remove(pid)
	p.store.Delete(pid)
}

// SetChainState stores an application-defined status payload for pid (opaque here; the beacon
// state transition / fork-choice consumer defines its actual shape, spec §1).
func (p *Status) SetChainState(pid peer.ID, chainState interface{}, validationErr error) error {
	p.store.Lock()
	defer p.store.Unlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return ErrPeerUnknown
	}
	data.ChainState = chainState
	data.ChainStateLastUpdated = time.Now()
	data.ChainStateValidationError = validationErr
	return nil
}

// ChainState returns the last known application status payload for pid.
func (p *Status) ChainState(pid peer.ID) (interface{}, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return nil, ErrPeerUnknown
	}
	if data.ChainState == nil {
		return nil, errors.New("peer has no known chain state")
	}
	return data.ChainState, nil
}

// ChainStateLastUpdated returns when chain state was last refreshed for pid.
func (p *Status) ChainStateLastUpdated(pid peer.ID) (time.Time, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return time.Time{}, ErrPeerUnknown
	}
	return data.ChainStateLastUpdated, nil
}

// SetMetadata stores pid's self-reported Metadata (spec §3, §4.11).
func (p *Status) SetMetadata(pid peer.ID, md *peerdata.Metadata) {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	data.Metadata = md
	data.MetadataUpdated = time.Now()
	data.MetadataFailures = 0
}

// Metadata returns pid's last known Metadata, if any.
func (p *Status) Metadata(pid peer.ID) (*peerdata.Metadata, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return nil, ErrPeerUnknown
	}
	return data.Metadata, nil
}

// IncrementMetadataFailure bumps pid's consecutive metadata-request failure counter and
// reports whether it has now reached maxFailures (spec §4.11: disconnect after
// MetadataRequestMaxFailures).
func (p *Status) IncrementMetadataFailure(pid peer.ID, maxFailures int) (count int, exceeded bool) {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	data.MetadataFailures++
	return data.MetadataFailures, data.MetadataFailures >= maxFailures
}

// SubscribedToSubnet returns every connected peer whose attestation-subnet bitfield has bit
// index set (spec §4.9/§4.10).
func (p *Status) SubscribedToSubnet(index uint64) []peer.ID {
	p.store.RLock()
	defer p.store.RUnlock()
	var out []peer.ID
	for _, pid := range p.store.Peers() {
		data, ok := p.store.PeerData(pid)
		if !ok || data.ConnState != peerdata.StateConnected || data.Metadata == nil {
			continue
		}
		if data.Metadata.Attnets.BitAt(index) {
			out = append(out, pid)
		}
	}
	return out
}

// SetAgentVersion records the libp2p-reported AgentVersion string and its classification
// (spec §6 "Agent detection").
func (p *Status) SetAgentVersion(pid peer.ID, agentVersion string) {
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	data.AgentVersion = agentVersion
	data.AgentClient = ClassifyAgent(agentVersion)
}

// AgentVersion returns the classified agent for pid.
func (p *Status) AgentVersion(pid peer.ID) (peerdata.AgentClient, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return peerdata.AgentUnknown, ErrPeerUnknown
	}
	return data.AgentClient, nil
}

// IsBad reports whether pid should be treated as a bad peer: either its bad-response count
// has crossed maxBadResponses, or its score has hit ScoreLowLimit (spec §3 invariant, §4.2).
func (p *Status) IsBad(pid peer.ID) bool {
	p.store.RLock()
	bad, ok := p.store.PeerData(pid)
	p.store.RUnlock()
	if !ok {
		return false
	}
	if bad.BadResponses >= p.maxBadResponses {
		return true
	}
	return bad.GetScore() <= scorers.ScoreLowLimit
}

// IncrementBadResponses delegates to the scorer, tagged with this Status's configured
// threshold.
func (p *Status) IncrementBadResponses(pid peer.ID) (int, bool) {
	return p.scorer.IncrementBadResponses(pid, p.maxBadResponses)
}

// MaxBadResponses returns the configured bad-response threshold.
func (p *Status) MaxBadResponses() int { return p.maxBadResponses }

// RecordThroughput folds a bytes/sec sample into pid's throughput EMA (spec §3
// "throughput EMA (bytes/sec, sample count)").
func (p *Status) RecordThroughput(pid peer.ID, bytesPerSec float64) {
	const alpha = 0.2
	p.store.Lock()
	defer p.store.Unlock()
	data := p.store.PeerDataGetOrCreate(pid)
	if data.ThroughputSamples == 0 {
		data.ThroughputEMA = bytesPerSec
	} else {
		data.ThroughputEMA = alpha*bytesPerSec + (1-alpha)*data.ThroughputEMA
	}
	data.ThroughputSamples++
}

// Throughput returns pid's current throughput EMA estimate.
func (p *Status) Throughput(pid peer.ID) (float64, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	data, ok := p.store.PeerData(pid)
	if !ok {
		return 0, ErrPeerUnknown
	}
	return data.ThroughputEMA, nil
}
