// Package reqresp implements the Req/Resp engine (spec §4.4), the declarative protocol
// registry with densely indexed per-peer/per-network state (§4.5, §9 "Protocol registry with
// densely indexed per-peer state"), the metadata pinger (§4.11), and the handshake/goodbye
// exchanges (SPEC_FULL C13/C14).
package reqresp

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
)

// RequestHandler serves one inbound stream for a mounted message. It returns an error, which
// the dispatcher maps to a wire response code and a descore reason per spec §4.5 step 5.
type RequestHandler func(ctx context.Context, req interface{}, stream network.Stream) error

// Message describes one (name, version) Req/Resp interaction mounted under a protocol.
type Message struct {
	// Name and Version compose the wire protocol id:
	// "/eth2/beacon_chain/req/<name>/<version>/ssz_snappy" (spec §6).
	Name    string
	Version string

	// NewRequest/NewResponse construct fresh zero-value message instances for decode.
	NewRequest  func() Codec
	NewResponse func() Codec

	// IsList marks a list-typed response: the engine reads chunks until clean EOF or
	// MaxChunks, rather than expecting exactly one chunk (spec §4.4 "Receive").
	IsList    bool
	MaxChunks int

	// Handler serves the inbound side of this message.
	Handler RequestHandler
}

// Codec is the minimal shape a Req/Resp payload must satisfy: SSZ marshal/unmarshal (schema
// itself out of scope, spec §1). It carries no chunk-size bound of its own.
type Codec interface {
	encoder.SSZMarshaler
	encoder.SSZUnmarshaler
}

// ProtocolDescriptor is one mountable protocol: a named group of Messages plus lifecycle
// hooks and state-slot initializers (spec §3 "Protocol descriptor", §9 design note).
type ProtocolDescriptor struct {
	Name     string
	Messages []Message

	// OnPeerConnected/OnPeerDisconnected run once per peer as it enters/leaves StateConnected
	// (spec §4.3: "Connecting -> Connected: all per-protocol on_peer_connected handlers have
	// completed successfully").
	OnPeerConnected    func(ctx context.Context, pid peer.ID) error
	OnPeerDisconnected func(ctx context.Context, pid peer.ID)

	// NewPeerState/NewNetworkState build this protocol's opaque state slot. Nil means the
	// protocol carries no such state.
	NewPeerState    func() interface{}
	NewNetworkState func() interface{}

	// index is assigned by the Registry on Mount; -1 until then.
	index int
}

// Index returns the process-wide dense index assigned to this protocol at mount time, or -1
// if it has not been mounted.
func (d *ProtocolDescriptor) Index() int { return d.index }

// Registry mounts protocols and indexes per-peer/per-network state in parallel slices so a
// lookup for a known protocol is an array index, not a map lookup (spec §9).
type Registry struct {
	mu sync.RWMutex

	protocols []*ProtocolDescriptor
	byName    map[string]*ProtocolDescriptor

	// peerState[pid] is a slice parallel to protocols, lazily populated per protocol.
	peerState map[peer.ID][]interface{}
	// networkState is parallel to protocols.
	networkState []interface{}
}

// NewRegistry builds an empty protocol registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*ProtocolDescriptor),
		peerState: make(map[peer.ID][]interface{}),
	}
}

// Mount assigns desc a dense index and registers it. Mounting the same name twice is a
// programming error (spec §7 "local programming" class) and panics rather than returning an
// error, matching the teacher's "invariants broken at mount time are fatal" design (§4.12).
func (r *Registry) Mount(desc *ProtocolDescriptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[desc.Name]; exists {
		panic("reqresp: protocol already mounted: " + desc.Name)
	}
	desc.index = len(r.protocols)
	r.protocols = append(r.protocols, desc)
	r.networkState = append(r.networkState, initState(desc.NewNetworkState))
	r.byName[desc.Name] = desc
	return desc.index
}

func initState(ctor func() interface{}) interface{} {
	if ctor == nil {
		return nil
	}
	return ctor()
}

// ByName returns the mounted protocol descriptor for name.
func (r *Registry) ByName(name string) (*ProtocolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Protocols returns every mounted descriptor, ordered by index.
func (r *Registry) Protocols() []*ProtocolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProtocolDescriptor, len(r.protocols))
	copy(out, r.protocols)
	return out
}

// NetworkState returns the per-network state slot for the protocol at idx.
func (r *Registry) NetworkState(idx int) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.networkState) {
		return nil
	}
	return r.networkState[idx]
}

// PeerState returns the state slot for (pid, idx), lazily initializing it from the
// protocol's NewPeerState on first access.
func (r *Registry) PeerState(pid peer.ID, idx int) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.protocols) {
		return nil
	}
	slots, ok := r.peerState[pid]
	if !ok {
		slots = make([]interface{}, len(r.protocols))
		r.peerState[pid] = slots
	}
	if len(slots) <= idx {
		grown := make([]interface{}, len(r.protocols))
		copy(grown, slots)
		slots = grown
		r.peerState[pid] = slots
	}
	if slots[idx] == nil {
		slots[idx] = initState(r.protocols[idx].NewPeerState)
	}
	return slots[idx]
}

// DropPeer releases every per-peer state slot for pid (spec §3 Lifecycle: peer state is
// destroyed once removed from the peer map).
func (r *Registry) DropPeer(pid peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peerState, pid)
}

// RunOnPeerConnected invokes every mounted protocol's OnPeerConnected hook for pid in
// registration order, stopping at the first error (spec §4.3: "Connecting -> Connected: all
// per-protocol on_peer_connected handlers have completed successfully").
func (r *Registry) RunOnPeerConnected(ctx context.Context, pid peer.ID) error {
	for _, d := range r.Protocols() {
		if d.OnPeerConnected == nil {
			continue
		}
		if err := d.OnPeerConnected(ctx, pid); err != nil {
			return errors.Wrapf(err, "protocol %s on_peer_connected", d.Name)
		}
	}
	return nil
}

// RunOnPeerDisconnected invokes every mounted protocol's OnPeerDisconnected hook for pid.
// Failures are not possible by design (spec §4.12: control loops never propagate transport
// errors), so this returns nothing; hooks that need to report trouble should log internally.
func (r *Registry) RunOnPeerDisconnected(ctx context.Context, pid peer.ID) {
	for _, d := range r.Protocols() {
		if d.OnPeerDisconnected == nil {
			continue
		}
		d.OnPeerDisconnected(ctx, pid)
	}
}
