package p2p

import (
	"context"
	"sync/atomic"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
	"github.com/prysmaticlabs/beacon-p2p/reqresp"
)

// Wire names/versions for the three protocols this node mounts (spec §6, C13/C14 additions).
const (
	statusProtocolName      = "status"
	statusProtocolVersion   = "1"
	goodbyeProtocolName     = "goodbye"
	goodbyeProtocolVersion  = "1"
	metadataProtocolName    = "metadata"
	metadataProtocolVersion = "2"
)

var errStatusSize = errors.New("status: unexpected payload size")

// emptyRequest is the zero-size request body for protocols that carry no request payload at
// all (spec §4.5 step 2's "treat as empty" branch) — distinct from peerdata.Metadata, whose
// SizeSSZ() is always the fixed 25-byte response size even when every field is zero-valued, so
// it cannot double as its own empty request type.
type emptyRequest struct{}

func (emptyRequest) MarshalSSZ() ([]byte, error) { return nil, nil }
func (emptyRequest) SizeSSZ() int                { return 0 }
func (emptyRequest) UnmarshalSSZ([]byte) error    { return nil }

// statusPayload is the Status (Hello) handshake body this node negotiates on: a 4-byte fork
// digest. The wider chain-state checkpoint fields a full node would also carry are an
// out-of-scope external collaborator (spec §1); fork-digest agreement is the one piece of
// status this package owns end-to-end via fork.go.
type statusPayload struct {
	ForkDigest [4]byte
}

func (p *statusPayload) MarshalSSZ() ([]byte, error) {
	b := make([]byte, 4)
	copy(b, p.ForkDigest[:])
	return b, nil
}

func (p *statusPayload) SizeSSZ() int { return 4 }

func (p *statusPayload) UnmarshalSSZ(data []byte) error {
	if len(data) != 4 {
		return errStatusSize
	}
	copy(p.ForkDigest[:], data)
	return nil
}

// forkStatusProvider implements reqresp.StatusProvider by comparing fork digests only (spec
// §4.3 "IrrelevantNetwork from an application-level status mismatch").
type forkStatusProvider struct {
	s *Service
}

func (f *forkStatusProvider) LocalStatus() reqresp.Codec {
	return &statusPayload{ForkDigest: f.s.digest}
}

func (f *forkStatusProvider) NewRemoteStatus() reqresp.Codec { return &statusPayload{} }

func (f *forkStatusProvider) IsForkCompatible(local, remote reqresp.Codec) bool {
	l, lok := local.(*statusPayload)
	r, rok := remote.(*statusPayload)
	return lok && rok && l.ForkDigest == r.ForkDigest
}

// statusMessage describes the Status protocol served by h.
func statusMessage(h *reqresp.HandshakeManager) reqresp.Message {
	return reqresp.Message{
		Name:        statusProtocolName,
		Version:     statusProtocolVersion,
		NewRequest:  func() reqresp.Codec { return &statusPayload{} },
		NewResponse: func() reqresp.Codec { return &statusPayload{} },
		Handler:     h.InboundHandler,
	}
}

// goodbyeMessage describes the Goodbye protocol served by g.
func goodbyeMessage(g *reqresp.GoodbyeSender) reqresp.Message {
	return reqresp.Message{
		Name:    goodbyeProtocolName,
		Version: goodbyeProtocolVersion,
		NewRequest: func() reqresp.Codec {
			r := reqresp.GoodbyeClientShutDown
			return &r
		},
		NewResponse: func() reqresp.Codec {
			r := reqresp.GoodbyeClientShutDown
			return &r
		},
		Handler: g.InboundHandler,
	}
}

// metadataMessage describes the Metadata protocol: an empty request, this node's current
// Metadata as the response (spec §4.11).
func metadataMessage(s *Service) reqresp.Message {
	return reqresp.Message{
		Name:        metadataProtocolName,
		Version:     metadataProtocolVersion,
		NewRequest:  func() reqresp.Codec { return emptyRequest{} },
		NewResponse: func() reqresp.Codec { return &peerdata.Metadata{} },
		Handler:     s.metadataInboundHandler,
	}
}

// metadataInboundHandler answers an inbound Metadata request with this node's own current
// Metadata snapshot (spec §4.11).
func (s *Service) metadataInboundHandler(_ context.Context, _ interface{}, stream network.Stream) error {
	md := s.localMetadata()
	_, err := s.enc.EncodeResponse(stream, md, encoder.ResponseCodeSuccess, nil)
	return err
}

// localMetadata builds this node's current self-reported Metadata from its subnet bitfields and
// sequence counter (spec §3, §4.11).
func (s *Service) localMetadata() *peerdata.Metadata {
	s.metadataMu.RLock()
	defer s.metadataMu.RUnlock()
	return &peerdata.Metadata{
		SeqNumber:      atomic.LoadUint64(&s.metadataSeq),
		Attnets:        s.attnets,
		Syncnets:       s.syncnets,
		CustodySubnets: s.custodySubnets,
	}
}

// bumpMetadataSeq increments the local Metadata sequence number, called whenever a subnet
// bitfield this node advertises changes (spec §3 "seq_number" semantics).
func (s *Service) bumpMetadataSeq() {
	atomic.AddUint64(&s.metadataSeq, 1)
}

// mountProtocols builds and mounts the Status/Goodbye/Metadata protocol descriptors, wires
// their inbound stream handlers onto the host, and constructs the handshake manager, goodbye
// sender, and metadata pinger that drive their outbound sides (spec §4.3/§4.11, C13/C14).
func (s *Service) mountProtocols() {
	suffix := s.enc.ProtocolSuffix()
	disconnect := func(pid peer.ID, reason string) {
		if err := s.Disconnect(pid, reason); err != nil {
			log.WithField("peer", pid).WithError(err).Debug("disconnect after protocol-driven drop failed")
		}
	}

	handshake := reqresp.NewHandshakeManager(s.engine, s.enc, s.status, reqresp.Message{Name: statusProtocolName, Version: statusProtocolVersion}, &forkStatusProvider{s: s}, disconnect)
	statusMsg := statusMessage(handshake)
	s.registry.Mount(&reqresp.ProtocolDescriptor{
		Name:     statusProtocolName,
		Messages: []reqresp.Message{statusMsg},
		OnPeerConnected: func(ctx context.Context, pid peer.ID) error {
			return handshake.PerformOutbound(ctx, pid)
		},
	})
	s.SetStreamHandler(protocolIDString(statusMsg, suffix), s.dispatch.HandlerFor(statusMsg))

	s.goodbye = reqresp.NewGoodbyeSender(s.engine, reqresp.Message{Name: goodbyeProtocolName, Version: goodbyeProtocolVersion})
	goodbyeMsg := goodbyeMessage(s.goodbye)
	s.registry.Mount(&reqresp.ProtocolDescriptor{Name: goodbyeProtocolName, Messages: []reqresp.Message{goodbyeMsg}})
	s.SetStreamHandler(protocolIDString(goodbyeMsg, suffix), s.dispatch.HandlerFor(goodbyeMsg))

	metaMsg := metadataMessage(s)
	s.registry.Mount(&reqresp.ProtocolDescriptor{Name: metadataProtocolName, Messages: []reqresp.Message{metaMsg}})
	s.SetStreamHandler(protocolIDString(metaMsg, suffix), s.dispatch.HandlerFor(metaMsg))
	s.pinger = reqresp.NewMetadataPinger(s.engine, s.status, metaMsg, func() reqresp.Codec { return &peerdata.Metadata{} }, disconnect)
}

// protocolIDString composes the wire protocol id for msg the same way reqresp's engine does
// internally, so the handler mounted via host.SetStreamHandler matches what Engine.Open dials.
func protocolIDString(msg reqresp.Message, suffix string) string {
	return "/eth2/beacon_chain/req/" + msg.Name + "/" + msg.Version + suffix
}
