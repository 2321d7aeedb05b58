package reqresp

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
)

// MetadataRequestFrequency is the steady-state re-ping interval for connected peers whose
// metadata is already known (spec §4.11).
const MetadataRequestFrequency = 30 * time.Minute

// MetadataRequestMaxFailures is the number of consecutive metadata-request failures tolerated
// before disconnecting a peer with reason PeerScoreLow (spec §4.11).
const MetadataRequestMaxFailures = 3

// DisconnectFunc is invoked when a peer should be dropped for a named reason. The orchestrator
// supplies the real implementation (owns the transport disconnect call); this package only
// decides *when*.
type DisconnectFunc func(pid peer.ID, reason string)

// MetadataPinger periodically requests Metadata from every connected peer, refreshing
// peers.Status and disconnecting peers that fail to answer MetadataRequestMaxFailures times in
// a row (spec §4.11).
type MetadataPinger struct {
	engine  *Engine
	status  *peers.Status
	msg     Message
	newResp func() Codec

	disconnect DisconnectFunc

	mu       sync.Mutex
	stopped  chan struct{}
	interval time.Duration
}

// NewMetadataPinger builds a pinger for the metadata Message msg. newResp constructs a fresh
// response instance shaped for the node's current fork (spec §4.11: "response version is
// chosen by the current fork epoch"); the caller re-derives it as needed each ping cycle.
func NewMetadataPinger(engine *Engine, status *peers.Status, msg Message, newResp func() Codec, disconnect DisconnectFunc) *MetadataPinger {
	return &MetadataPinger{
		engine:     engine,
		status:     status,
		msg:        msg,
		newResp:    newResp,
		disconnect: disconnect,
		interval:   MetadataRequestFrequency,
	}
}

// Start launches the periodic ping loop; also pings any connected peer with unknown metadata
// immediately rather than waiting a full interval (spec §4.11 "or when metadata is missing").
func (m *MetadataPinger) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopped != nil {
		m.mu.Unlock()
		return
	}
	m.stopped = make(chan struct{})
	stop := m.stopped
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.PingMissing(ctx)
		for {
			select {
			case <-ticker.C:
				m.PingAll(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the ping loop.
func (m *MetadataPinger) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped != nil {
		close(m.stopped)
		m.stopped = nil
	}
}

// PingAll pings every connected peer in parallel (spec §4.11 "dispatch ... to each connected
// peer in parallel").
func (m *MetadataPinger) PingAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, pid := range m.status.Connected() {
		wg.Add(1)
		go func(pid peer.ID) {
			defer wg.Done()
			m.ping(ctx, pid)
		}(pid)
	}
	wg.Wait()
}

// PingMissing pings only connected peers with no stored metadata yet.
func (m *MetadataPinger) PingMissing(ctx context.Context) {
	var wg sync.WaitGroup
	for _, pid := range m.status.Connected() {
		if md, err := m.status.Metadata(pid); err == nil && md != nil {
			continue
		}
		wg.Add(1)
		go func(pid peer.ID) {
			defer wg.Done()
			m.ping(ctx, pid)
		}(pid)
	}
	wg.Wait()
}

func (m *MetadataPinger) ping(ctx context.Context, pid peer.ID) {
	md := m.newResp().(*peerdata.Metadata)
	if err := m.engine.Send(ctx, pid, m.msg, nil, md); err != nil {
		m.onFailure(pid)
		return
	}
	m.status.SetMetadata(pid, md)
}

func (m *MetadataPinger) onFailure(pid peer.ID) {
	_, exceeded := m.status.IncrementMetadataFailure(pid, MetadataRequestMaxFailures)
	if exceeded && m.disconnect != nil {
		m.disconnect(pid, "PeerScoreLow")
	}
}
