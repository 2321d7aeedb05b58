package reqresp

import (
	"context"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/scorers"
)

// ErrUnviableFork is returned when a peer's Status response places it on an incompatible fork
// (spec §4.3/§7 "IrrelevantNetwork from an application-level status mismatch").
var ErrUnviableFork = errors.New("peer is on an incompatible fork")

// StatusProvider supplies this node's outbound Status payload and judges a remote peer's reply
// for fork compatibility. Chain-state shape itself is opaque to this package (spec §1); the
// application layer (fork choice / state transition) owns StatusProvider's implementation.
type StatusProvider interface {
	LocalStatus() Codec
	NewRemoteStatus() Codec
	IsForkCompatible(local, remote Codec) bool
}

// HandshakeManager drives the Status request/response exchange that gates
// Connecting -> Connected (spec §4.3) and supplements the base spec with an explicit component
// for it, grounded on the teacher's sync/rpc_status.go maintainPeerStatuses/statusRPCHandler.
type HandshakeManager struct {
	engine     *Engine
	enc        encoder.NetworkEncoding
	status     *peers.Status
	msg        Message
	provider   StatusProvider
	disconnect DisconnectFunc
}

// NewHandshakeManager wires a HandshakeManager for the mounted Status message msg.
func NewHandshakeManager(engine *Engine, enc encoder.NetworkEncoding, status *peers.Status, msg Message, provider StatusProvider, disconnect DisconnectFunc) *HandshakeManager {
	return &HandshakeManager{engine: engine, enc: enc, status: status, msg: msg, provider: provider, disconnect: disconnect}
}

// PerformOutbound sends our Status to pid and records the outcome. It is the
// on_peer_connected hook the protocol registry runs before Connecting -> Connected can complete
// (spec §4.3).
func (h *HandshakeManager) PerformOutbound(ctx context.Context, pid peer.ID) error {
	local := h.provider.LocalStatus()
	remote := h.provider.NewRemoteStatus()
	if err := h.engine.Send(ctx, pid, h.msg, local, remote); err != nil {
		h.status.Scorer().Update(pid, scorers.DeltaNoResponse)
		return err
	}
	if !h.provider.IsForkCompatible(local, remote) {
		h.status.Scorer().Update(pid, scorers.DeltaUnviableFork)
		if h.disconnect != nil {
			h.disconnect(pid, "IrrelevantNetwork")
		}
		return ErrUnviableFork
	}
	if err := h.status.SetChainState(pid, remote, nil); err != nil {
		return err
	}
	h.status.Scorer().Update(pid, scorers.DeltaGoodStatus)
	return nil
}

// InboundHandler serves an incoming Status request: record the caller's status, judge fork
// compatibility, and reply with our own (spec §4.3, grounded on statusRPCHandler's
// respond-then-validate order so a fork mismatch is still followed by our own Status frame).
func (h *HandshakeManager) InboundHandler(ctx context.Context, req interface{}, stream network.Stream) error {
	remote, ok := req.(Codec)
	if !ok {
		return errors.New("status handler received unexpected request type")
	}
	pid := stream.Conn().RemotePeer()
	local := h.provider.LocalStatus()
	if _, err := h.enc.EncodeResponse(stream, local, encoder.ResponseCodeSuccess, nil); err != nil {
		return err
	}
	if !h.provider.IsForkCompatible(local, remote) {
		h.status.Scorer().Update(pid, scorers.DeltaUnviableFork)
		if h.disconnect != nil {
			h.disconnect(pid, "IrrelevantNetwork")
		}
		return nil
	}
	if err := h.status.SetChainState(pid, remote, nil); err != nil {
		return err
	}
	h.status.Scorer().Update(pid, scorers.DeltaGoodStatus)
	return nil
}
