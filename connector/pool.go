package connector

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "connector")

// ConcurrentConnections is the fixed dial-worker pool size (spec §4.8).
const ConcurrentConnections = 20

// DefaultConnectTimeout bounds one dial attempt (spec §4.8 "connectTimeout default 1 min").
const DefaultConnectTimeout = time.Minute

// dialQueueSize bounds the pending-dial channel; beyond this, callers should trigger trimming
// before enqueueing more candidates (spec §4.9 "if the queue would overflow the peer budget,
// first schedule trimming").
const dialQueueSize = 4096

// PeerAddress is one dial candidate discovered by the discovery adapter or supplied as a
// static/direct peer (spec §4.8/§4.9).
type PeerAddress struct {
	ID   peer.ID
	Addr ma.Multiaddr
}

// Dialer is the narrow outbound-connect contract a worker needs; the p2p orchestrator supplies
// the real libp2p-backed implementation.
type Dialer interface {
	Connect(ctx context.Context, pid peer.ID, addr ma.Multiaddr) error
}

// PeerState answers whether pid is already connected, so a worker can skip a redundant dial.
type PeerState interface {
	IsConnected(pid peer.ID) bool
}

// Pool is the bounded dial-worker pool described in spec §4.8: ConcurrentConnections workers
// drain a bounded queue of PeerAddress candidates, consulting the seen-table and live peer map
// before attempting each connection.
type Pool struct {
	dialer  Dialer
	peers   PeerState
	seen    *SeenTable
	timeout time.Duration

	queue   chan PeerAddress
	pending *lru.Cache // peer.ID -> struct{}, dedups addresses already queued or in flight

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool builds a Pool with ConcurrentConnections workers, not yet started.
func NewPool(dialer Dialer, peers PeerState, seen *SeenTable) *Pool {
	pending, err := lru.New(dialQueueSize)
	if err != nil {
		// Only non-positive size makes lru.New fail; dialQueueSize is a fixed positive constant.
		panic(err)
	}
	return &Pool{
		dialer:  dialer,
		peers:   peers,
		seen:    seen,
		timeout: DefaultConnectTimeout,
		queue:   make(chan PeerAddress, dialQueueSize),
		pending: pending,
	}
}

// Start launches ConcurrentConnections worker goroutines, each running until ctx is cancelled or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < ConcurrentConnections; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop cancels every worker and waits for them to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Enqueue offers candidate to the dial queue, skipping it if already pending, seen, or
// connected. Returns false if the queue is full (spec §4.9: caller should schedule trimming).
func (p *Pool) Enqueue(candidate PeerAddress) bool {
	if p.peers.IsConnected(candidate.ID) {
		return true
	}
	if _, seen := p.seen.Seen(candidate.ID); seen {
		return true
	}
	if p.pending.Contains(candidate.ID) {
		return true
	}
	select {
	case p.queue <- candidate:
		p.pending.Add(candidate.ID, struct{}{})
		return true
	default:
		return false
	}
}

// QueueLen reports how many candidates are waiting to be dialed.
func (p *Pool) QueueLen() int { return len(p.queue) }

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case candidate := <-p.queue:
			p.dispose(ctx, candidate)
		}
	}
}

// dispose implements spec §4.8's three worker steps for one candidate.
func (p *Pool) dispose(ctx context.Context, candidate PeerAddress) {
	defer p.pending.Remove(candidate.ID)

	if p.peers.IsConnected(candidate.ID) {
		return
	}
	if _, seen := p.seen.Seen(candidate.ID); seen {
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.dialer.Connect(dialCtx, candidate.ID, candidate.Addr)
	switch {
	case err == nil:
		p.seen.Mark(candidate.ID, ReasonBenignReconnect) // expires quickly, allowing reconnect
	case dialCtx.Err() == context.DeadlineExceeded:
		log.WithField("peer", candidate.ID).Debug("dial timed out")
		p.seen.Mark(candidate.ID, ReasonTimeout)
	default:
		log.WithField("peer", candidate.ID).WithError(err).Debug("dial failed")
		p.seen.Mark(candidate.ID, ReasonDead)
	}
}
