package reqresp

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/protocol"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/scorers"
	"github.com/prysmaticlabs/beacon-p2p/p2p/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "reqresp")

// Host is the narrow slice of libp2p's host.Host the engine needs: opening outbound streams
// and mounting inbound handlers. Narrowed to ease testing and keep this package from depending
// on the rest of libp2p's Host surface (spec §6 "Wire protocols").
type Host interface {
	NewStream(ctx context.Context, pid peer.ID, pids ...protocol.ID) (network.Stream, error)
	SetStreamHandler(pid protocol.ID, handler network.StreamHandler)
}

const (
	// DefaultStreamOpenTimeout bounds NewStream (spec §4.4 "Open").
	DefaultStreamOpenTimeout = 10 * time.Second
	// DefaultRespTimeout bounds each chunk read/write (spec §5 "Timeouts").
	DefaultRespTimeout = 10 * time.Second
)

// Engine is the Req/Resp transport described in spec §4.4/§4.5: it opens outbound streams,
// writes/reads chunks through a NetworkEncoding, and feeds every outcome back into peer scoring.
type Engine struct {
	host   Host
	enc    encoder.NetworkEncoding
	status *peers.Status

	streamOpenTimeout time.Duration
	respTimeout       time.Duration
}

// Config configures a new Engine.
type Config struct {
	StreamOpenTimeout time.Duration
	RespTimeout       time.Duration
}

// NewEngine builds a Req/Resp engine over host, encoding it with enc, and scoring outcomes
// against status.
func NewEngine(host Host, enc encoder.NetworkEncoding, status *peers.Status, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.StreamOpenTimeout == 0 {
		cfg.StreamOpenTimeout = DefaultStreamOpenTimeout
	}
	if cfg.RespTimeout == 0 {
		cfg.RespTimeout = DefaultRespTimeout
	}
	return &Engine{host: host, enc: enc, status: status, streamOpenTimeout: cfg.StreamOpenTimeout, respTimeout: cfg.RespTimeout}
}

// protocolID composes the wire protocol identifier for a mounted message (spec §6).
func protocolID(name, version, suffix string) protocol.ID {
	return protocol.ID("/eth2/beacon_chain/req/" + name + "/" + version + suffix)
}

// Open opens a new stream to pid for msg, bounded by streamOpenTimeout. A timeout descores
// PeerScorePoorRequest (spec §4.4 "Open").
func (e *Engine) Open(ctx context.Context, pid peer.ID, msg Message) (network.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, e.streamOpenTimeout)
	defer cancel()
	pid2 := protocolID(msg.Name, msg.Version, e.enc.ProtocolSuffix())
	stream, err := e.host.NewStream(ctx, pid, pid2)
	if err != nil {
		e.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewRPCError(types.ErrKindStreamOpenTimeout, "stream open timed out")
		}
		return nil, types.NewRPCError(types.ErrKindBrokenConnection, err.Error())
	}
	return stream, nil
}

// watchCancel resets stream if ctx is cancelled before done is closed, honoring spec §5's
// "every await point is a cancellation point" without leaking a goroutine past the call.
func watchCancel(ctx context.Context, stream network.Stream) (done func()) {
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.Reset()
		case <-doneCh:
		}
	}()
	return func() { close(doneCh) }
}

// Send performs one request/single-chunk-response round trip (spec §4.4 Send/Receive). req may
// be nil for a zero-body request (e.g. a ping). resp is populated in place on success.
func (e *Engine) Send(ctx context.Context, pid peer.ID, msg Message, req encoder.SSZMarshaler, resp encoder.SSZUnmarshaler) error {
	stream, err := e.Open(ctx, pid, msg)
	if err != nil {
		return err
	}
	stopWatch := watchCancel(ctx, stream)
	defer stopWatch()
	defer stream.Close()

	if req != nil && req.SizeSSZ() > 0 {
		if _, err := e.enc.EncodeWithMaxLength(stream, req); err != nil {
			stream.Reset()
			e.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
			return err
		}
	}
	if err := stream.CloseWrite(); err != nil {
		stream.Reset()
		e.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
		return types.NewRPCError(types.ErrKindBrokenConnection, err.Error())
	}

	if err := stream.SetReadDeadline(time.Now().Add(e.respTimeout)); err != nil {
		log.WithError(err).Debug("failed to set read deadline")
	}
	readStart := time.Now()
	if err := e.readResponseChunk(stream, resp); err != nil {
		e.scoreReceiveError(pid, err)
		return err
	}
	e.recordThroughput(pid, resp, time.Since(readStart))
	e.status.Scorer().Update(pid, scorers.DeltaGoodValues)
	return nil
}

// recordThroughput samples a bytes/sec data point for pid's throughput EMA (spec §3
// "throughput EMA (bytes/sec, sample count)") using a short-window rate counter over the single
// chunk just read, for any response type that also knows its own wire size.
func (e *Engine) recordThroughput(pid peer.ID, resp encoder.SSZUnmarshaler, elapsed time.Duration) {
	sizer, ok := resp.(encoder.SSZMarshaler)
	if !ok || elapsed <= 0 {
		return
	}
	rc := ratecounter.NewRateCounter(elapsed)
	rc.Incr(int64(sizer.SizeSSZ()))
	e.status.RecordThroughput(pid, float64(rc.Rate())/elapsed.Seconds())
}

// SendList performs a request with a list-typed response: chunks are read until a clean EOF
// (success) or maxChunks is exceeded (ResponseChunkOverflow). newResp constructs a fresh zero
// value for each chunk (spec §4.4 "Receive", list-typed case).
func (e *Engine) SendList(ctx context.Context, pid peer.ID, msg Message, req encoder.SSZMarshaler, newResp func() Codec, maxChunks int) ([]Codec, error) {
	stream, err := e.Open(ctx, pid, msg)
	if err != nil {
		return nil, err
	}
	stopWatch := watchCancel(ctx, stream)
	defer stopWatch()
	defer stream.Close()

	if req != nil && req.SizeSSZ() > 0 {
		if _, err := e.enc.EncodeWithMaxLength(stream, req); err != nil {
			stream.Reset()
			e.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
			return nil, err
		}
	}
	if err := stream.CloseWrite(); err != nil {
		stream.Reset()
		e.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
		return nil, types.NewRPCError(types.ErrKindBrokenConnection, err.Error())
	}

	var out []Codec
	for {
		if len(out) >= maxChunks {
			e.status.Scorer().Update(pid, scorers.DeltaInvalidRequest)
			return nil, types.NewRPCError(types.ErrKindResponseChunkOverflow, "response exceeded max_chunks")
		}
		if err := stream.SetReadDeadline(time.Now().Add(e.respTimeout)); err != nil {
			log.WithError(err).Debug("failed to set read deadline")
		}
		resp := newResp()
		err := e.readResponseChunk(stream, resp)
		if err != nil {
			if rerr, ok := types.AsRPCError(err); ok && rerr.Kind == types.ErrKindPotentiallyExpectedEOF {
				break
			}
			e.scoreReceiveError(pid, err)
			return nil, err
		}
		out = append(out, resp)
	}
	e.status.Scorer().Update(pid, scorers.DeltaGoodValues)
	return out, nil
}

// readResponseChunk reads one response chunk: code, optional context bytes, payload (spec
// §4.1 "Decode contract").
func (e *Engine) readResponseChunk(stream network.Stream, to encoder.SSZUnmarshaler) error {
	code, err := e.enc.ReadResponseCode(stream)
	if err != nil {
		if rerr, ok := types.AsRPCError(err); ok && rerr.Kind == types.ErrKindUnexpectedEOF {
			return types.NewRPCError(types.ErrKindPotentiallyExpectedEOF, "stream closed before response code")
		}
		return err
	}
	if code != encoder.ResponseCodeSuccess {
		msg, derr := e.enc.DecodeErrorMessage(stream)
		if derr != nil {
			msg = ""
		}
		return &types.ReceivedErrorResponse{Code: byte(code), Message: msg}
	}
	return e.enc.DecodeWithMaxLength(stream, to)
}

// scoreReceiveError applies spec §4.4's "Scoring feedback" table.
func (e *Engine) scoreReceiveError(pid peer.ID, err error) {
	if rerr, ok := types.AsRPCError(err); ok && rerr.Kind.IsProtocolViolation() {
		e.status.Scorer().Update(pid, scorers.DeltaInvalidRequest)
		return
	}
	e.status.Scorer().Update(pid, scorers.DeltaPoorRequest)
}
