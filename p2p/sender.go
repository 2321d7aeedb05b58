package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prysmaticlabs/beacon-p2p/reqresp"
)

// Send performs a single-chunk Req/Resp round trip to pid via the mounted protocol engine
// (spec §4.4).
func (s *Service) Send(ctx context.Context, pid peer.ID, msg reqresp.Message, req, resp reqresp.Codec) error {
	return s.engine.Send(ctx, pid, msg, req, resp)
}

// SendList performs a multi-chunk Req/Resp round trip to pid (spec §4.4 list responses).
func (s *Service) SendList(ctx context.Context, pid peer.ID, msg reqresp.Message, req reqresp.Codec, newResp func() reqresp.Codec, maxChunks int) ([]reqresp.Codec, error) {
	return s.engine.SendList(ctx, pid, msg, req, newResp, maxChunks)
}
