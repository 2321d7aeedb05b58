package reqresp

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers"
	"github.com/stretchr/testify/require"
)

// emptyPing is a zero-size request body, the same shape the metadata protocol now uses (spec
// §4.5 step 2's "treat as empty" branch, the bug this dispatcher round trip guards against).
type emptyPing struct{}

func (emptyPing) MarshalSSZ() ([]byte, error) { return nil, nil }
func (emptyPing) SizeSSZ() int                { return 0 }
func (emptyPing) UnmarshalSSZ([]byte) error   { return nil }

// pongValue is a small fixed-size response, just enough to prove a round trip actually carried
// data rather than merely completing.
type pongValue struct{ Value uint64 }

func (p *pongValue) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.Value)
	return buf, nil
}

func (p *pongValue) SizeSSZ() int { return 8 }

func (p *pongValue) UnmarshalSSZ(data []byte) error {
	if len(data) != 8 {
		return errors.New("pongValue: bad size")
	}
	p.Value = binary.LittleEndian.Uint64(data)
	return nil
}

func newDispatchTestHost(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func connectDispatchHosts(t *testing.T, a, b host.Host) {
	t.Helper()
	require.NoError(t, a.Connect(context.Background(), peer.AddrInfo{ID: b.ID(), Addrs: b.Addrs()}))
}

// runDispatchRoundTrip wires client and server hosts together through a real Dispatcher serving
// msg, and drives one Engine.Send round trip, mirroring the way the teacher's own RPC handler
// tests connect two real libp2p hosts instead of mocking network.Stream.
func runDispatchRoundTrip(t *testing.T, msg Message, req encoder.SSZMarshaler) *pongValue {
	t.Helper()
	client := newDispatchTestHost(t)
	server := newDispatchTestHost(t)
	connectDispatchHosts(t, client, server)

	enc := encoder.SszNetworkEncoder{UseSnappyCompression: true}
	serverStatus := peers.NewStatus(&peers.Config{})
	registry := NewRegistry()
	registry.Mount(&ProtocolDescriptor{Name: msg.Name, Messages: []Message{msg}})
	dispatcher := NewDispatcher(registry, enc, serverStatus, 2*time.Second)
	pid := protocolID(msg.Name, msg.Version, enc.ProtocolSuffix())
	server.SetStreamHandler(pid, dispatcher.HandlerFor(msg))

	clientStatus := peers.NewStatus(&peers.Config{})
	engine := NewEngine(client, enc, clientStatus, nil)
	resp := &pongValue{}
	err := engine.Send(context.Background(), server.ID(), msg, req, resp)
	require.NoError(t, err)
	return resp
}

func pongHandler(enc encoder.NetworkEncoding, value uint64) RequestHandler {
	return func(ctx context.Context, req interface{}, stream network.Stream) error {
		_, err := enc.EncodeResponse(stream, &pongValue{Value: value}, encoder.ResponseCodeSuccess, nil)
		return err
	}
}

// TestDispatcher_RoundTrip_NormalRequest exercises spec §8 scenario S1: a well-formed
// request/single-chunk-response round trip through the real serve() path.
func TestDispatcher_RoundTrip_NormalRequest(t *testing.T) {
	enc := encoder.SszNetworkEncoder{UseSnappyCompression: true}
	msg := Message{
		Name:        "ping",
		Version:     "1",
		NewRequest:  func() Codec { return &pongValue{} },
		NewResponse: func() Codec { return &pongValue{} },
		Handler:     pongHandler(enc, 42),
	}
	resp := runDispatchRoundTrip(t, msg, &pongValue{Value: 7})
	require.Equal(t, uint64(42), resp.Value)
}

// TestDispatcher_RoundTrip_EmptyRequest exercises the metadata-shaped case this review round
// fixed: a request type with SizeSSZ() == 0 must never reach DecodeWithMaxLength on the serving
// side (spec §4.5 step 2), so a ping carrying no body at all still gets a real answer instead of
// InvalidRequest.
func TestDispatcher_RoundTrip_EmptyRequest(t *testing.T) {
	enc := encoder.SszNetworkEncoder{UseSnappyCompression: true}
	msg := Message{
		Name:        "ping-empty",
		Version:     "1",
		NewRequest:  func() Codec { return emptyPing{} },
		NewResponse: func() Codec { return &pongValue{} },
		Handler:     pongHandler(enc, 99),
	}
	resp := runDispatchRoundTrip(t, msg, nil)
	require.Equal(t, uint64(99), resp.Value)
}
