package reqresp

import (
	"context"
	"encoding/binary"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
)

var errGoodbyeSize = errors.New("goodbye: unexpected payload size")

// GoodbyeReason is the one-field SSZ payload of a Goodbye notification (spec §6 "Goodbye reason
// codes").
type GoodbyeReason uint64

const (
	// GoodbyeClientShutDown is sent on an orchestrated node shutdown.
	GoodbyeClientShutDown GoodbyeReason = 1
	// GoodbyeIrrelevantNetwork is sent when a peer's Status places it on an incompatible fork.
	GoodbyeIrrelevantNetwork GoodbyeReason = 2
	// GoodbyeFaultOrError is sent for any other locally-detected fault.
	GoodbyeFaultOrError GoodbyeReason = 3
	// GoodbyePeerScoreLow is sent when a peer's score crosses ScoreLowLimit.
	GoodbyePeerScoreLow GoodbyeReason = 237

	goodbyeSSZSize = 8
)

// MarshalSSZ implements encoder.SSZMarshaler.
func (r GoodbyeReason) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, goodbyeSSZSize)
	binary.LittleEndian.PutUint64(buf, uint64(r))
	return buf, nil
}

// SizeSSZ implements encoder.SSZMarshaler.
func (GoodbyeReason) SizeSSZ() int { return goodbyeSSZSize }

// UnmarshalSSZ implements encoder.SSZUnmarshaler.
func (r *GoodbyeReason) UnmarshalSSZ(data []byte) error {
	if len(data) != goodbyeSSZSize {
		return errGoodbyeSize
	}
	*r = GoodbyeReason(binary.LittleEndian.Uint64(data))
	return nil
}

// ReasonName renders a reason code the way a human-readable disconnect log line would (spec §6:
// "values >= 128 are implementation-private").
func (r GoodbyeReason) ReasonName() string {
	switch r {
	case GoodbyeClientShutDown:
		return "ClientShutDown"
	case GoodbyeIrrelevantNetwork:
		return "IrrelevantNetwork"
	case GoodbyeFaultOrError:
		return "FaultOrError"
	case GoodbyePeerScoreLow:
		return "PeerScoreLow"
	default:
		if r >= 128 {
			return "ImplementationPrivate"
		}
		return "Unknown"
	}
}

// GoodbyeSender issues best-effort Goodbye notifications before a local disconnect (spec §4.3
// "Connected -> Disconnecting: disconnect(reason) requested"). Supplements the base spec with
// an explicit component, grounded on the teacher's rpc_topic_mappings.go goodbye entry and the
// same send-then-ignore-response shape as a notification RPC.
type GoodbyeSender struct {
	engine *Engine
	msg    Message
}

// NewGoodbyeSender wires a sender for the mounted Goodbye message msg.
func NewGoodbyeSender(engine *Engine, msg Message) *GoodbyeSender {
	return &GoodbyeSender{engine: engine, msg: msg}
}

// Send notifies pid of reason. Failures are swallowed (spec §4.12 "control loops: failures are
// logged and recorded ... never propagate upward") since the caller is already tearing the
// connection down regardless of whether the peer heard about it.
func (g *GoodbyeSender) Send(ctx context.Context, pid peer.ID, reason GoodbyeReason) {
	var ignored GoodbyeReason
	if err := g.engine.Send(ctx, pid, g.msg, reason, &ignored); err != nil {
		log.WithField("peer", pid).WithField("reason", reason.ReasonName()).WithError(err).Debug("goodbye notification failed")
	}
}

// InboundHandler logs an incoming Goodbye and writes a zero-value acknowledgement so the stream
// closes cleanly; the caller's own disconnect logic (driven by the transport's connection-closed
// event) does the actual teardown.
func (g *GoodbyeSender) InboundHandler(_ context.Context, req interface{}, stream network.Stream) error {
	reason, _ := req.(*GoodbyeReason)
	pid := stream.Conn().RemotePeer()
	entry := log.WithField("peer", pid)
	if reason != nil {
		entry = entry.WithField("reason", reason.ReasonName())
	}
	entry.Debug("received goodbye")
	var ack GoodbyeReason
	_, err := (encoder.SszNetworkEncoder{UseSnappyCompression: true}).EncodeResponse(stream, ack, encoder.ResponseCodeSuccess, nil)
	return err
}
