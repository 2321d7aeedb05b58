package reqresp

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/scorers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/types"
)

// InvalidInputsError marks an application-level rejection of a well-formed request (spec §4.5
// step 5: "InvalidInputsError -> InvalidRequest"). Handlers wrap their own validation failures
// in this, distinct from a transport or codec problem.
type InvalidInputsError struct{ cause error }

func (e *InvalidInputsError) Error() string { return e.cause.Error() }
func (e *InvalidInputsError) Unwrap() error { return e.cause }

// NewInvalidInputsError wraps cause as an application-level input rejection.
func NewInvalidInputsError(cause error) error { return &InvalidInputsError{cause: cause} }

// ResourceUnavailableError marks a well-formed request for a resource the node does not hold
// locally (spec §4.5 step 5: "ResourceUnavailableError -> ResourceUnavailable").
type ResourceUnavailableError struct{ cause error }

func (e *ResourceUnavailableError) Error() string { return e.cause.Error() }
func (e *ResourceUnavailableError) Unwrap() error { return e.cause }

// NewResourceUnavailableError wraps cause as a missing-resource response.
func NewResourceUnavailableError(cause error) error { return &ResourceUnavailableError{cause: cause} }

// Dispatcher serves inbound Req/Resp streams for every message mounted in a Registry (spec
// §4.5). One Dispatcher is shared by every SetStreamHandler registration the orchestrator
// makes.
type Dispatcher struct {
	registry *Registry
	enc      encoder.NetworkEncoding
	status   *peers.Status
	timeout  time.Duration
}

// NewDispatcher builds a Dispatcher over registry, decoding/encoding with enc and scoring
// through status.
func NewDispatcher(registry *Registry, enc encoder.NetworkEncoding, status *peers.Status, timeout time.Duration) *Dispatcher {
	if timeout == 0 {
		timeout = DefaultRespTimeout
	}
	return &Dispatcher{registry: registry, enc: enc, status: status, timeout: timeout}
}

// HandlerFor returns a network.StreamHandler for msg, suitable for host.SetStreamHandler. Mount
// once per (name, version) message via the protocol id returned by protocolID.
func (d *Dispatcher) HandlerFor(msg Message) network.StreamHandler {
	return func(stream network.Stream) {
		d.serve(stream, msg)
	}
}

// serve implements spec §4.5's six numbered steps for one inbound stream.
func (d *Dispatcher) serve(stream network.Stream, msg Message) {
	pid := stream.Conn().RemotePeer()
	defer func() {
		stream.Close()
		d.releasePeer(pid)
	}()

	// Step 1: resolve/drop.
	state, err := d.status.ConnectionState(pid)
	if err == nil {
		switch state {
		case peerdata.StateDisconnecting, peerdata.StateDisconnected, peerdata.StateNone:
			stream.Reset()
			return
		}
	}

	// Step 2: bounded read of the request chunk, or treat as empty when the message type has
	// zero SSZ-encoded size (spec §4.5 step 2) — a zero-size request carries no wire body at
	// all (the sender only CloseWrite()s), so there is nothing to decode.
	if err := stream.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		log.WithError(err).Debug("failed to set read deadline")
	}
	req := msg.NewRequest()
	var decodeErr error
	if req.SizeSSZ() > 0 {
		decodeErr = d.enc.DecodeWithMaxLength(stream, req)
	}

	// Step 4: charge quota once regardless of decode outcome (spec: "even on invalid requests,
	// to stop loop attackers").
	d.status.Quota().TryConsume(pid, msg.Name)

	if decodeErr != nil {
		d.respondDecodeError(stream, pid, decodeErr)
		return
	}

	// Step 5: invoke the user handler.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	handlerErr := msg.Handler(ctx, req, stream)
	d.respondHandlerOutcome(stream, pid, handlerErr)
}

// respondDecodeError implements step 3 of spec §4.5's inbound handler.
func (d *Dispatcher) respondDecodeError(stream network.Stream, pid peer.ID, decodeErr error) {
	rerr, ok := types.AsRPCError(decodeErr)
	if !ok {
		d.writeErrorResponse(stream, encoder.ResponseCodeServerError, decodeErr.Error())
		d.status.Scorer().Update(pid, scorers.DeltaInvalidRequest)
		return
	}
	switch rerr.Kind {
	case types.ErrKindBrokenConnection:
		stream.Reset()
		return
	case types.ErrKindInvalidContextBytes:
		d.writeErrorResponse(stream, encoder.ResponseCodeServerError, "Unrecognized context bytes")
	case types.ErrKindUnexpectedEOF, types.ErrKindPotentiallyExpectedEOF, types.ErrKindInvalidSnappyBytes,
		types.ErrKindInvalidSszBytes, types.ErrKindInvalidSizePrefix, types.ErrKindZeroSizePrefix,
		types.ErrKindSizePrefixOverflow, types.ErrKindResponseChunkOverflow, types.ErrKindUnknownError:
		d.writeErrorResponse(stream, encoder.ResponseCodeInvalidRequest, rerr.Error())
	default:
		d.writeErrorResponse(stream, encoder.ResponseCodeServerError, rerr.Error())
	}
	d.status.Scorer().Update(pid, scorers.DeltaInvalidRequest)
}

// respondHandlerOutcome implements step 5's error-mapping and step 6's stream close.
func (d *Dispatcher) respondHandlerOutcome(stream network.Stream, pid peer.ID, handlerErr error) {
	if handlerErr == nil {
		// The handler itself is responsible for writing its Success chunk(s) before returning;
		// this only finalizes the write side (spec §4.5 step 6).
		if err := stream.CloseWrite(); err != nil {
			log.WithError(err).Debug("failed to close write side after handler success")
		}
		return
	}
	var invalidInputs *InvalidInputsError
	var resourceUnavailable *ResourceUnavailableError
	switch {
	case errors.As(handlerErr, &invalidInputs):
		d.writeErrorResponse(stream, encoder.ResponseCodeInvalidRequest, handlerErr.Error())
		d.status.Scorer().Update(pid, scorers.DeltaInvalidRequest)
	case errors.As(handlerErr, &resourceUnavailable):
		d.writeErrorResponse(stream, encoder.ResponseCodeResourceUnavailable, handlerErr.Error())
	default:
		d.writeErrorResponse(stream, encoder.ResponseCodeServerError, handlerErr.Error())
		d.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
	}
	if err := stream.CloseWrite(); err != nil {
		log.WithError(err).Debug("failed to close write side after handler error")
	}
}

func (d *Dispatcher) writeErrorResponse(stream network.Stream, code encoder.ResponseCode, message string) {
	if _, err := d.enc.EncodeResponse(stream, types.ErrorMessage(message), code, nil); err != nil {
		log.WithError(err).Debug("failed to write error response")
	}
}

// releasePeer reports whether pid has crossed IsBad. serve discards the result, so the
// dispatcher itself never disconnects a peer or schedules a disconnect.
func (d *Dispatcher) releasePeer(pid peer.ID) bool {
	return d.status.IsBad(pid)
}
