package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/reqresp"
)

// P2P is the full surface the application layer drives the node through: publish, mount stream
// handlers, send request/response messages, and inspect/manage peers.
type P2P interface {
	Broadcaster
	SetStreamHandler
	EncodingProvider
	PubSubProvider
	PeerManager
	Sender
}

// Broadcaster publishes an SSZ-encodable message to its mapped gossip topic (spec §4.6).
type Broadcaster interface {
	Broadcast(ctx context.Context, msg encoder.SSZMarshaler) error
}

// SetStreamHandler mounts a Req/Resp protocol descriptor (spec §4.5).
type SetStreamHandler interface {
	SetStreamHandler(protocolID string, handler network.StreamHandler)
}

// EncodingProvider exposes the negotiated network encoding.
type EncodingProvider interface {
	Encoding() encoder.NetworkEncoding
}

// PubSubProvider exposes the underlying pubsub instance for lower-level access.
type PubSubProvider interface {
	PubSub() *pubsub.PubSub
}

// PeerManager abstracts peer disconnection.
type PeerManager interface {
	Disconnect(pid peer.ID, reason string) error
}

// Sender performs an outbound Req/Resp round trip (spec §4.4).
type Sender interface {
	Send(ctx context.Context, pid peer.ID, msg reqresp.Message, req, resp reqresp.Codec) error
}
