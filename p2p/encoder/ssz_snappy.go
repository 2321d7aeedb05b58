package encoder

import (
	"io"
	"net"
	"os"

	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/types"
)

// SszNetworkEncoder is the only NetworkEncoding this module implements: SSZ-schema payloads,
// framed-snappy compression (spec §4.1, §6 "ssz_snappy").
type SszNetworkEncoder struct {
	// UseSnappyCompression toggles compression; kept configurable (rather than hardwired) so
	// tests can exercise the uncompressed request-chunk path cheaply. Production wiring
	// always sets this true, matching the teacher's single shipped encoding.
	UseSnappyCompression bool
}

var _ NetworkEncoding = SszNetworkEncoder{}

// ProtocolSuffix implements NetworkEncoding.
func (e SszNetworkEncoder) ProtocolSuffix() string {
	if e.UseSnappyCompression {
		return "/ssz_snappy"
	}
	return "/ssz"
}

// MaxChunkSize implements NetworkEncoding.
func (e SszNetworkEncoder) MaxChunkSize(to SSZUnmarshaler) uint64 {
	return maxSizeFor(to)
}

// doEncode writes LEB128(len(payload)) followed by the (optionally snappy-framed) payload.
// The size header and the payload reach w as separate Write calls; the chunk is not first
// assembled into one buffer.
func (e SszNetworkEncoder) doEncode(w io.Writer, payload []byte) (int, error) {
	sizeHeader := varint.ToUvarint(uint64(len(payload)))
	if _, err := w.Write(sizeHeader); err != nil {
		return 0, errors.Wrap(err, "could not write size header")
	}
	n := len(sizeHeader)
	if !e.UseSnappyCompression {
		written, err := w.Write(payload)
		return n + written, err
	}
	writer := newBufferedWriter(w)
	defer bufWriterPool.Put(writer)
	written, err := writer.Write(payload)
	if err != nil {
		return n + written, errors.Wrap(err, "could not write snappy-framed payload")
	}
	if err := writer.Close(); err != nil {
		return n + written, errors.Wrap(err, "could not flush snappy-framed payload")
	}
	return n + written, nil
}

// EncodeWithMaxLength implements NetworkEncoding: a bare request chunk, no response code, no
// context bytes. Per spec §3, empty requests omit the entire chunk.
func (e SszNetworkEncoder) EncodeWithMaxLength(w io.Writer, msg SSZMarshaler) (int, error) {
	if msg == nil || msg.SizeSSZ() == 0 {
		return 0, nil
	}
	payload, err := msg.MarshalSSZ()
	if err != nil {
		return 0, errors.Wrap(err, "could not marshal message")
	}
	if uint64(len(payload)) > e.MaxChunkSize(nil) {
		return 0, types.NewRPCError(types.ErrKindSizePrefixOverflow, "payload exceeds chunk max size")
	}
	return e.doEncode(w, payload)
}

// EncodeResponse implements NetworkEncoding: code ‖ context? ‖ LEB128(len) ‖
// framed-snappy(payload) (spec §4.1 encode contract).
func (e SszNetworkEncoder) EncodeResponse(w io.Writer, msg SSZMarshaler, code ResponseCode, contextBytes []byte) (int, error) {
	total := 0
	if n, err := w.Write([]byte{byte(code)}); err != nil {
		return n, errors.Wrap(err, "could not write response code")
	} else {
		total += n
	}
	if len(contextBytes) > 0 {
		if n, err := w.Write(contextBytes); err != nil {
			return total + n, errors.Wrap(err, "could not write context bytes")
		} else {
			total += n
		}
	}
	if code != ResponseCodeSuccess {
		// Error responses carry a bounded ASCII/hex-renderable message instead of an
		// SSZ payload (spec §6 "Error message").
		payload, err := msg.MarshalSSZ()
		if err != nil {
			return total, errors.Wrap(err, "could not marshal error message")
		}
		if len(payload) > MaxErrorMessageLength {
			payload = payload[:MaxErrorMessageLength]
		}
		n, err := e.doEncode(w, payload)
		return total + n, err
	}
	if msg == nil || msg.SizeSSZ() == 0 {
		return total, nil
	}
	payload, err := msg.MarshalSSZ()
	if err != nil {
		return total, errors.Wrap(err, "could not marshal message")
	}
	if uint64(len(payload)) > e.MaxChunkSize(nil) {
		return total, types.NewRPCError(types.ErrKindSizePrefixOverflow, "payload exceeds chunk max size")
	}
	n, err := e.doEncode(w, payload)
	return total + n, err
}

// readVarint reads a LEB128 length prefix, enforcing spec §4.1's decode-contract bounds:
// a zero length is rejected when the caller requires a non-empty payload, and any declared
// length beyond maxChunkSize is rejected *before* decompression begins (spec invariant #4 in
// §3, testable property #4 in §8).
func readVarint(r io.Reader, maxChunkSize uint64, allowZero bool) (uint64, error) {
	length, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return 0, types.NewRPCError(types.ErrKindInvalidSizePrefix, "could not read size prefix: "+err.Error())
	}
	if length == 0 && !allowZero {
		return 0, types.NewRPCError(types.ErrKindZeroSizePrefix, "zero size prefix")
	}
	if length > maxChunkSize {
		return 0, types.NewRPCError(types.ErrKindSizePrefixOverflow, "declared length exceeds chunk max size")
	}
	return length, nil
}

// byteReader adapts an io.Reader to io.ByteReader one byte at a time, sufficient for the
// short LEB128 prefixes this codec reads (at most 10 bytes for a uint64).
type byteReader struct {
	io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Reader, buf[:])
	return buf[0], err
}

// DecodeWithMaxLength implements NetworkEncoding: reads a bare request chunk (no response
// code, no context bytes) into to.
func (e SszNetworkEncoder) DecodeWithMaxLength(r io.Reader, to SSZUnmarshaler) error {
	maxSize := maxSizeFor(to)
	length, err := readVarint(r, maxSize, true)
	if err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	payload, err := e.readPayload(r, length)
	if err != nil {
		return err
	}
	if err := to.UnmarshalSSZ(payload); err != nil {
		return types.NewRPCError(types.ErrKindInvalidSszBytes, "could not unmarshal ssz: "+err.Error())
	}
	return nil
}

// readPayload decompresses exactly `length` bytes of uncompressed payload, mapping stream
// errors to the taxonomy in spec §4.1 / §7.
func (e SszNetworkEncoder) readPayload(r io.Reader, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if !e.UseSnappyCompression {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, mapReadErr(err)
		}
		return buf, nil
	}
	reader := newBufferedReader(r)
	defer bufReaderPool.Put(reader)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, mapReadErr(err)
	}
	return buf, nil
}

// mapReadErr classifies a read failure per the transport-benign/protocol-violation split (spec
// §7): a stalled peer tripping the per-read deadline (RESP_TIMEOUT) is a transport condition,
// not a malformed stream, and must not be scored as a protocol violation (spec §4.4 "Scoring
// feedback", testable scenario S3).
func mapReadErr(err error) error {
	switch {
	case err == io.EOF:
		return types.NewRPCError(types.ErrKindUnexpectedEOF, "stream ended before declared length")
	case err == io.ErrUnexpectedEOF:
		return types.NewRPCError(types.ErrKindUnexpectedEOF, "stream ended before declared length")
	case isTimeout(err):
		return types.NewRPCError(types.ErrKindReadResponseTimeout, "response read deadline exceeded")
	default:
		return types.NewRPCError(types.ErrKindInvalidSnappyBytes, "malformed framed-snappy stream: "+err.Error())
	}
}

// isTimeout reports whether err is the stream's read deadline firing, however the transport
// surfaces it: a plain os.ErrDeadlineExceeded, or a net.Error reporting Timeout().
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ReadResponseCode implements NetworkEncoding: the one-byte response code prefix, validated
// against the known range (spec §4.1 decode contract, step 1).
func (e SszNetworkEncoder) ReadResponseCode(r io.Reader) (ResponseCode, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, mapReadErr(err)
	}
	code := ResponseCode(buf[0])
	if code > maxValidResponseCode {
		return 0, types.NewRPCError(types.ErrKindInvalidResponseCode, "invalid response code")
	}
	return code, nil
}

// ReadResponseCode is a package-level convenience wrapper over the default SszNetworkEncoder
// for callers that only need the response-code prefix without a full NetworkEncoding value.
func ReadResponseCode(r io.Reader) (ResponseCode, error) {
	return SszNetworkEncoder{}.ReadResponseCode(r)
}

// ReadContextBytes reads the 4-byte fork-digest context, when the message type carries them.
func ReadContextBytes(r io.Reader) (types.ForkDigest, error) {
	var digest types.ForkDigest
	if _, err := io.ReadFull(r, digest[:]); err != nil {
		return digest, types.NewRPCError(types.ErrKindInvalidContextBytes, "could not read context bytes: "+err.Error())
	}
	return digest, nil
}

// DecodeErrorMessage reads a bounded error-message payload for a non-Success response code
// (spec §4.1 decode contract, step 2) and renders it per §9 "error response body formatting":
// ASCII when every byte is printable, hex otherwise.
func (e SszNetworkEncoder) DecodeErrorMessage(r io.Reader) (string, error) {
	length, err := readVarint(r, MaxErrorMessageLength, true)
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	payload, err := e.readPayload(r, length)
	if err != nil {
		return "", err
	}
	return RenderErrorMessage(payload), nil
}

// RenderErrorMessage implements §9's formatting rule: printable ASCII renders as-is, anything
// else renders as hex. A naive utf-8-or-fail decode is explicitly called out as unacceptable.
func RenderErrorMessage(payload []byte) string {
	for _, b := range payload {
		if b < 0x20 || b > 0x7e {
			return hexString(payload)
		}
	}
	return string(payload)
}

const hexDigits = "0123456789abcdef"

func hexString(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
