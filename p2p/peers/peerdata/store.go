// Package peerdata holds the backing store shared by the peers.Status record-keeper and the
// peers/scorers package, so both can read/write peer fields under a single lock (spec §5:
// "all mutable state ... is accessed only from this scheduler thread; no locks are required
// between tasks for these structures" — we still use a mutex since Go lacks a single-threaded
// cooperative scheduler primitive, but every lock is held only for the duration of a single
// map access, never across an await/suspension point).
package peerdata

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"
)

// ErrPeerUnknown is returned by any accessor for a peer.ID never added to the store.
var ErrPeerUnknown = errors.New("peer unknown")

// ConnState is the peer connection state machine (spec §3, §4.3).
type ConnState int

const (
	// StateNone is the zero state: the peer has never been connected.
	StateNone ConnState = iota
	// StateConnecting: an on-going attempt to connect, handshake not yet complete.
	StateConnecting
	// StateConnected: all per-protocol on_peer_connected handlers have completed.
	StateConnected
	// StateDisconnecting: disconnect(reason) requested, seen-table entry already written.
	StateDisconnecting
	// StateDisconnected: transport reports zero live connections to this peer.
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "None"
	}
}

// IsActive reports whether the state is Connecting or Connected.
func (s ConnState) IsActive() bool { return s == StateConnecting || s == StateConnected }

// IsInactive reports whether the state is Disconnecting or Disconnected.
func (s ConnState) IsInactive() bool { return s == StateDisconnecting || s == StateDisconnected }

// Metadata mirrors the remote peer's self-reported metadata (spec §3 Peer.metadata):
// sequence number, attestation/sync-committee subnet bitfields, custody-subnet count. Older
// protocol versions are widened into this same struct with zero-valued new fields (spec §4.11
// design note on fork-polymorphic metadata responses).
type Metadata struct {
	SeqNumber      uint64
	Attnets        bitfield.Bitvector64
	Syncnets       bitfield.Bitvector4
	CustodySubnets uint64
}

// AgentClient is the classification of a peer's AgentVersion string (spec §6).
type AgentClient int

const (
	AgentUnknown AgentClient = iota
	AgentLighthouse
	AgentPrysm
	AgentTeku
	AgentLodestar
	AgentGrandine
	AgentNimbus
)

// PeerData holds everything known about one remote peer at the protocol level.
type PeerData struct {
	Address   ma.Multiaddr
	Direction network.Direction
	ConnState ConnState
	Enr       *enr.Record

	ChainState            interface{} // application-defined Status payload, opaque here (§1)
	ChainStateLastUpdated time.Time
	ChainStateValidationError error

	Metadata         *Metadata
	MetadataUpdated  time.Time
	MetadataFailures int

	AgentVersion string
	AgentClient  AgentClient

	BadResponses    int
	ProcessedBlocks uint64

	// Score is the additive, bounded integer score described in spec §3/§4.2. Accessed only
	// through GetScore/SetScore so every mutation goes through the same place even though the
	// field itself lives directly on PeerData (the store's lock already serializes access).
	Score int

	// Connections counts live physical connections to this peer; a spurious duplicate
	// Connected event while already Connecting/Connected bumps this instead of creating a
	// second logical peer (spec §4.3). The state only flips to Disconnected once this drops
	// to zero.
	Connections int

	// ThroughputEMA/ThroughputSamples back a simple EMA that peers.Status updates and reads.
	ThroughputEMA     float64
	ThroughputSamples uint64
}

// Store is the lock-protected map of peer.ID to PeerData. Exported RLock/Lock let callers
// (peers.Status, peers/scorers) batch multiple field reads/writes under one critical section,
// mirroring the teacher's peerdata.Store pattern referenced from peers/scorers/peer_status.go.
type Store struct {
	sync.RWMutex
	peers map[peer.ID]*PeerData
}

// NewStore allocates an empty peer data store.
func NewStore() *Store {
	return &Store{peers: make(map[peer.ID]*PeerData)}
}

// PeerData returns the stored data for pid, without creating it.
func (s *Store) PeerData(pid peer.ID) (*PeerData, bool) {
	data, ok := s.peers[pid]
	return data, ok
}

// PeerDataGetOrCreate returns the stored data for pid, creating a zero-value entry in
// StateNone if this is the first reference to the peer.
func (s *Store) PeerDataGetOrCreate(pid peer.ID) *PeerData {
	data, ok := s.peers[pid]
	if !ok {
		data = &PeerData{ConnState: StateNone}
		s.peers[pid] = data
	}
	return data
}

// SetPeerData overwrites the stored data for pid.
func (s *Store) SetPeerData(pid peer.ID, data *PeerData) {
	s.peers[pid] = data
}

// Delete removes pid from the store entirely (spec §3 Lifecycle: "destroyed ... after final
// Disconnected event and all protocol handlers resolve").
func (s *Store) Delete(pid peer.ID) {
	delete(s.peers, pid)
}

// Peers returns every known peer.ID, regardless of state.
func (s *Store) Peers() []peer.ID {
	out := make([]peer.ID, 0, len(s.peers))
	for pid := range s.peers {
		out = append(out, pid)
	}
	return out
}

// Len reports the number of tracked peers.
func (s *Store) Len() int { return len(s.peers) }

// GetScore returns the peer's current bounded score.
func (d *PeerData) GetScore() int { return d.Score }

// SetScore overwrites the peer's bounded score. Callers are expected to have already clamped
// the value (see scorers.clamp); this setter does not re-clamp so that ResetOnReencounter can
// set exactly 0 without going through the clamp path.
func (d *PeerData) SetScore(v int) { d.Score = v }
