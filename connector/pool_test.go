package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	mu    sync.Mutex
	calls []peer.ID
	err   error
	delay time.Duration
}

func (d *fakeDialer) Connect(ctx context.Context, pid peer.ID, addr ma.Multiaddr) error {
	d.mu.Lock()
	d.calls = append(d.calls, pid)
	d.mu.Unlock()
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.err
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakePeerState struct {
	mu        sync.Mutex
	connected map[peer.ID]bool
}

func newFakePeerState() *fakePeerState {
	return &fakePeerState{connected: make(map[peer.ID]bool)}
}

func (s *fakePeerState) IsConnected(pid peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[pid]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPool_EnqueueDialsSuccessfully(t *testing.T) {
	dialer := &fakeDialer{}
	peers := newFakePeerState()
	seen := NewSeenTable()
	pool := NewPool(dialer, peers, seen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	pid := randPeerID(t)
	assert.True(t, pool.Enqueue(PeerAddress{ID: pid}))

	waitFor(t, func() bool { return dialer.callCount() == 1 })
	waitFor(t, func() bool { _, ok := seen.Seen(pid); return ok })

	reason, ok := seen.Seen(pid)
	require.True(t, ok)
	assert.Equal(t, ReasonBenignReconnect, reason)
}

func TestPool_SkipsAlreadyConnectedPeer(t *testing.T) {
	dialer := &fakeDialer{}
	peers := newFakePeerState()
	seen := NewSeenTable()
	pool := NewPool(dialer, peers, seen)

	pid := randPeerID(t)
	peers.connected[pid] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	assert.True(t, pool.Enqueue(PeerAddress{ID: pid}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, dialer.callCount())
}

func TestPool_SkipsSeenPeer(t *testing.T) {
	dialer := &fakeDialer{}
	peers := newFakePeerState()
	seen := NewSeenTable()
	pool := NewPool(dialer, peers, seen)

	pid := randPeerID(t)
	seen.Mark(pid, ReasonIrrelevantNetwork)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	assert.True(t, pool.Enqueue(PeerAddress{ID: pid}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, dialer.callCount())
}

func TestPool_DialFailureMarksDead(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	peers := newFakePeerState()
	seen := NewSeenTable()
	pool := NewPool(dialer, peers, seen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	pid := randPeerID(t)
	pool.Enqueue(PeerAddress{ID: pid})

	waitFor(t, func() bool { _, ok := seen.Seen(pid); return ok })
	reason, _ := seen.Seen(pid)
	assert.Equal(t, ReasonDead, reason)
}
