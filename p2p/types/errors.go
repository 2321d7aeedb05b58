// Package types holds the wire-level error taxonomy and fork-keyed object mappings shared
// across the p2p, reqresp, and gossip packages.
package types

import (
	"strconv"

	"github.com/pkg/errors"
)

// ErrorKind classifies a chunk-codec or Req/Resp failure so callers can decide how to score
// the remote peer (see §7 of the error handling design: transport-benign, protocol-violation,
// application-logical).
type ErrorKind int

const (
	// ErrKindBrokenConnection indicates the underlying stream died mid-read/write.
	ErrKindBrokenConnection ErrorKind = iota
	// ErrKindUnexpectedEOF indicates the stream closed before a complete chunk arrived.
	ErrKindUnexpectedEOF
	// ErrKindPotentiallyExpectedEOF indicates a clean EOF that legitimately terminates a
	// list-typed response stream.
	ErrKindPotentiallyExpectedEOF
	// ErrKindStreamOpenTimeout indicates opening the outbound stream exceeded its deadline.
	ErrKindStreamOpenTimeout
	// ErrKindReadResponseTimeout indicates a per-chunk read exceeded RESP_TIMEOUT.
	ErrKindReadResponseTimeout

	// Kinds from here on are protocol violations (see IsProtocolViolation).

	// ErrKindInvalidResponseCode indicates a response-code byte above the highest known code.
	ErrKindInvalidResponseCode
	// ErrKindInvalidSnappyBytes indicates a malformed framed-snappy sub-frame.
	ErrKindInvalidSnappyBytes
	// ErrKindInvalidSszBytes indicates the decompressed payload failed SSZ decoding.
	ErrKindInvalidSszBytes
	// ErrKindInvalidSizePrefix indicates the LEB128 length prefix itself was malformed.
	ErrKindInvalidSizePrefix
	// ErrKindZeroSizePrefix indicates a declared uncompressed length of zero where the
	// message type requires a non-empty payload.
	ErrKindZeroSizePrefix
	// ErrKindSizePrefixOverflow indicates the declared uncompressed length exceeds
	// chunk_max_size(T) for the message type.
	ErrKindSizePrefixOverflow
	// ErrKindInvalidContextBytes indicates unrecognized fork-digest context bytes.
	ErrKindInvalidContextBytes
	// ErrKindResponseChunkOverflow indicates a list-typed response exceeded max_chunks.
	ErrKindResponseChunkOverflow
	// ErrKindUnknownError is a catch-all protocol violation.
	ErrKindUnknownError
)

// IsProtocolViolation reports whether a kind should trigger heavy descoring (§7).
func (k ErrorKind) IsProtocolViolation() bool {
	return k >= ErrKindInvalidResponseCode
}

// RPCError is a typed chunk-codec / Req-Resp error carrying its scoring-relevant Kind.
type RPCError struct {
	Kind ErrorKind
	msg  string
}

func (e *RPCError) Error() string { return e.msg }

// NewRPCError builds an *RPCError of the given kind carrying msg; it wraps no underlying error.
func NewRPCError(kind ErrorKind, msg string) *RPCError {
	return &RPCError{Kind: kind, msg: msg}
}

// AsRPCError extracts an *RPCError from err, if any.
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	ok := errors.As(err, &rpcErr)
	return rpcErr, ok
}

// Sentinel errors surfaced to application code (mirrors p2p.ErrMessageNotMapped,
// peerdata.ErrPeerUnknown in the teacher repo).
var (
	// ErrMessageNotMapped occurs when a Broadcast is attempted for a type with no registered
	// gossip topic mapping.
	ErrMessageNotMapped = errors.New("message type is not mapped to a pubsub topic")
	// ErrRateLimited is returned by reqresp.TopicLimiter.ValidateRequest when a peer exceeds
	// its per-topic Req/Resp quota. Nothing in this module writes it to the wire.
	ErrRateLimited = errors.New("rate limited")
	// ErrIncompleteResponse names an error payload that could not be fully read. Nothing in
	// this module returns it: reqresp's engine yields a ReceivedErrorResponse with an empty
	// Message in that case.
	ErrIncompleteResponse = errors.New("incomplete error response payload")
)

// ReceivedErrorResponse is yielded to Req/Resp callers when the remote peer answered with a
// non-Success response code (§4.1 decode contract step 2).
type ReceivedErrorResponse struct {
	Code    byte
	Message string
}

func (e *ReceivedErrorResponse) Error() string {
	return "rpc error response (code=" + strconv.Itoa(int(e.Code)) + "): " + e.Message
}
