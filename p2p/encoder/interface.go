// Package encoder implements the chunk codec for Req/Resp streams (spec §4.1, §3 "Chunk"):
// a one-byte response code, optional 4-byte fork-digest context bytes, a LEB128 length
// prefix, and a framed-snappy-compressed payload. The payload schema (SSZ) is out of this
// package's scope; message types only need to marshal/unmarshal themselves to bytes.
package encoder

import "io"

// SSZMarshaler is satisfied by any Req/Resp or gossip payload. Schema details (SSZ encoding
// rules) are out of scope for this package (spec §1) — it only needs a byte representation
// and a declared maximum size to enforce the bound in §3's invariants.
type SSZMarshaler interface {
	MarshalSSZ() ([]byte, error)
	SizeSSZ() int
}

// SSZUnmarshaler is satisfied by any Req/Resp or gossip payload that can be populated from
// its wire bytes.
type SSZUnmarshaler interface {
	UnmarshalSSZ(data []byte) error
}

// NetworkEncoding is the chunk codec contract consumed by the Req/Resp engine (C4), the
// protocol registry (C5), and the gossip pipeline (C6).
type NetworkEncoding interface {
	// EncodeWithMaxLength writes a request chunk (no response code, no context bytes):
	// LEB128(len) ‖ framed-snappy(payload). Returns the number of bytes written.
	EncodeWithMaxLength(w io.Writer, msg SSZMarshaler) (int, error)
	// EncodeResponse writes a full response chunk: code ‖ context? ‖ LEB128(len) ‖
	// framed-snappy(payload).
	EncodeResponse(w io.Writer, msg SSZMarshaler, code ResponseCode, contextBytes []byte) (int, error)
	// DecodeWithMaxLength reads a request chunk into to, rejecting any declared length above
	// maxChunkSize(to).
	DecodeWithMaxLength(r io.Reader, to SSZUnmarshaler) error
	// MaxChunkSize returns the compile-time maximum uncompressed payload size this encoding
	// will accept for a given message type, used to bound decode before decompression.
	MaxChunkSize(to SSZUnmarshaler) uint64
	// ProtocolSuffix names the wire encoding, appended to every Req/Resp protocol id and
	// gossip topic (spec §6: ".../ssz_snappy").
	ProtocolSuffix() string
	// ReadResponseCode reads the one-byte response-code prefix of a response chunk (spec §4.1
	// decode contract, step 1), consumed by the Req/Resp engine before decoding the body.
	ReadResponseCode(r io.Reader) (ResponseCode, error)
	// DecodeErrorMessage reads the bounded error-message payload that follows a non-Success
	// response code (spec §4.1 decode contract, step 2).
	DecodeErrorMessage(r io.Reader) (string, error)
}

// ResponseCode is the one-byte prefix on a response chunk (spec §6).
type ResponseCode byte

const (
	// ResponseCodeSuccess indicates a well-formed, application-accepted response chunk.
	ResponseCodeSuccess ResponseCode = 0
	// ResponseCodeInvalidRequest indicates the request itself was malformed or rejected.
	ResponseCodeInvalidRequest ResponseCode = 1
	// ResponseCodeServerError indicates an internal failure unrelated to the request body.
	ResponseCodeServerError ResponseCode = 2
	// ResponseCodeResourceUnavailable indicates the requested resource is not held locally.
	ResponseCodeResourceUnavailable ResponseCode = 3

	// maxValidResponseCode is the highest response code this codec understands; anything
	// above it is ErrKindInvalidResponseCode (spec §4.1 decode contract, step 1).
	maxValidResponseCode = ResponseCodeResourceUnavailable
)

// DefaultMaxChunkSize bounds payloads for message types that do not declare their own
// maximum (spec's chunk_max_size(T) defaults to this when T carries no explicit bound).
const DefaultMaxChunkSize = 10 * 1 << 20 // 10 MiB, generous headroom for list-typed bodies.

// MaxErrorMessageLength bounds the error-message payload read back for non-Success codes
// (spec §4.1 decode contract, step 2).
const MaxErrorMessageLength = 256

// MaxChunkSizer is optionally implemented by message types that need a non-default bound
// (e.g. large list responses); when absent, DefaultMaxChunkSize applies.
type MaxChunkSizer interface {
	ChunkSSZMaxSize() uint64
}

func maxSizeFor(to interface{}) uint64 {
	if sizer, ok := to.(MaxChunkSizer); ok {
		return sizer.ChunkSSZMaxSize()
	}
	return DefaultMaxChunkSize
}
