package connector

import (
	"sync"

	"github.com/libp2p/go-libp2p-core/peer"
)

// AdmissionResult is the outcome of asking the peer pool whether a new connection may proceed
// (spec §4.7 admission policy).
type AdmissionResult int

const (
	Success AdmissionResult = iota
	LowScoreError
	NoSpaceError
	DuplicateError
	DeadPeerError
)

func (r AdmissionResult) String() string {
	switch r {
	case Success:
		return "Success"
	case LowScoreError:
		return "LowScoreError"
	case NoSpaceError:
		return "NoSpaceError"
	case DuplicateError:
		return "DuplicateError"
	case DeadPeerError:
		return "DeadPeerError"
	default:
		return "Unknown"
	}
}

// Direction distinguishes inbound from outbound connections for the pool's directional budgets.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// ScoreFunc reports a peer's current integer score, consulted during admission (spec §4.7:
// "reject new connections from peers already below the ban threshold").
type ScoreFunc func(pid peer.ID) int64

// peerEntry is the pool's per-peer refcounted admission record.
type peerEntry struct {
	inbound  int
	outbound int
	dead     bool
}

// Pool's companion PeerPool is the bounded multiset keyed by peer.ID described in spec §4.7: it
// tracks directional connection counts per peer and the network-wide inbound/outbound budgets,
// answering admission requests before the connector or listener accepts a new stream.
type PeerPool struct {
	mu sync.Mutex

	maxInbound  int
	maxOutbound int

	entries map[peer.ID]*peerEntry
	totalIn int
	totalOut int

	score ScoreFunc
	// minScore is the ban threshold below which new connections are refused outright.
	minScore int64

	// onCountChanged fires whenever total peer count changes (spec §4.7 "peer-count changed"
	// callback), and onDelete fires when a peer's last connection is removed.
	onCountChanged func(total int)
	onDelete       func(pid peer.ID)
}

// NewPeerPool builds an empty bounded peer pool.
func NewPeerPool(maxInbound, maxOutbound int, minScore int64, score ScoreFunc) *PeerPool {
	return &PeerPool{
		maxInbound:  maxInbound,
		maxOutbound: maxOutbound,
		minScore:    minScore,
		score:       score,
		entries:     make(map[peer.ID]*peerEntry),
	}
}

// SetOnCountChanged registers the peer-count-changed callback.
func (p *PeerPool) SetOnCountChanged(fn func(total int)) { p.onCountChanged = fn }

// SetOnDelete registers the on-peer-deleted callback.
func (p *PeerPool) SetOnDelete(fn func(pid peer.ID)) { p.onDelete = fn }

// Admit evaluates whether pid may open one more connection in dir, admitting it if so (spec
// §4.7: duplicate connections to an already-connected peer are allowed and simply refcounted,
// everything else is budget- and score-gated).
func (p *PeerPool) Admit(pid peer.ID, dir Direction) AdmissionResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.entries[pid]
	if exists && entry.dead {
		return DeadPeerError
	}
	if !exists {
		if p.score != nil && p.score(pid) < p.minScore {
			return LowScoreError
		}
		if dir == Inbound && p.totalIn >= p.maxInbound {
			return NoSpaceError
		}
		if dir == Outbound && p.totalOut >= p.maxOutbound {
			return NoSpaceError
		}
	}

	if !exists {
		entry = &peerEntry{}
		p.entries[pid] = entry
	} else if entry.inbound+entry.outbound > 0 {
		// Re-encounter of a live peer: this specific duplicate-connection path is always allowed
		// and refcounted rather than budget-checked again (spec §4.7 "duplicate connections").
	}

	wasNew := entry.inbound == 0 && entry.outbound == 0
	switch dir {
	case Inbound:
		entry.inbound++
		p.totalIn++
	case Outbound:
		entry.outbound++
		p.totalOut++
	}

	if wasNew && p.onCountChanged != nil {
		p.onCountChanged(len(p.entries))
	}
	return Success
}

// Release drops one connection of direction dir from pid, removing the peer entirely once its
// last connection is gone.
func (p *PeerPool) Release(pid peer.ID, dir Direction) {
	p.mu.Lock()
	entry, ok := p.entries[pid]
	if !ok {
		p.mu.Unlock()
		return
	}
	switch dir {
	case Inbound:
		if entry.inbound > 0 {
			entry.inbound--
			p.totalIn--
		}
	case Outbound:
		if entry.outbound > 0 {
			entry.outbound--
			p.totalOut--
		}
	}
	empty := entry.inbound == 0 && entry.outbound == 0
	if empty {
		delete(p.entries, pid)
	}
	total := len(p.entries)
	p.mu.Unlock()

	if empty && p.onDelete != nil {
		p.onDelete(pid)
	}
	if empty && p.onCountChanged != nil {
		p.onCountChanged(total)
	}
}

// MarkDead flags pid as dead, so further Admit calls refuse it while its entry exists (spec
// §4.7: a peer the connector has given up on should not be silently re-admitted mid-disconnect).
// There is no separate clear call: the flag goes away only when a Release call for pid finds
// the entry with no connections left and removes it.
func (p *PeerPool) MarkDead(pid peer.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[pid]
	if !ok {
		entry = &peerEntry{}
		p.entries[pid] = entry
	}
	entry.dead = true
}

// IsConnected implements the connector.PeerState contract the dial-worker pool needs.
func (p *PeerPool) IsConnected(pid peer.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[pid]
	return ok && !entry.dead && (entry.inbound+entry.outbound) > 0
}

// Len returns the current distinct peer count.
func (p *PeerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
