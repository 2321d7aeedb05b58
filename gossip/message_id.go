// Package gossip implements the gossip pipeline (spec §4.6): the validated-topics set,
// synchronous validation contract, message-id function, and broadcast/publish path built on
// go-libp2p-pubsub's gossipsub implementation (grounded on the teacher's
// beacon-chain/p2p/pubsub.go, pubsub_filter.go, pubsub_message_id.go, broadcaster.go, and
// gossip_scoring_params.go).
package gossip

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	pubsubpb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/minio/sha256-simd"
)

// messageDomainValidSnappy is the 4-byte domain prefix folded into every gossip message id
// (spec §6 "Message-id domain").
var messageDomainValidSnappy = [4]byte{0x01, 0x00, 0x00, 0x00}

// phase0TopicPrefix marks the legacy topic family whose message id omits the topic and its
// length entirely (spec §4.6 "Message id ... For messages whose topic begins with the phase-0
// prefix the topic and its length are omitted (legacy rule)").
const phase0TopicPrefix = "/eth2/phase0/"

// MessageID computes the content-addressable id for one gossip message: the first 20 bytes of
// sha256(domain ‖ topic-length-LE64 ‖ topic ‖ decompressed-payload), base64url-encoded to match
// go-libp2p-pubsub's string id convention (spec §4.6).
func MessageID(topic string, decompressedPayload []byte) string {
	h := sha256.New()
	h.Write(messageDomainValidSnappy[:])
	if !strings.HasPrefix(topic, phase0TopicPrefix) {
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(topic)))
		h.Write(lenBuf[:])
		h.Write([]byte(topic))
	}
	h.Write(decompressedPayload)
	sum := h.Sum(nil)
	return base64.URLEncoding.EncodeToString(sum[:20])
}

// pubsubMessageID adapts MessageID to go-libp2p-pubsub's msg-id function signature (registered
// via pubsub.WithMessageIdFn). The wire payload is snappy-compressed; the id is defined over the
// decompressed bytes (spec §4.6), so this decompresses before hashing. A message that fails to
// decompress here still needs an id (pubsub computes ids before routing to validators) — it
// falls back to hashing the raw bytes, and the pipeline's wrapped validator (wrapValidator),
// which decompresses again, rejects it afterward.
func pubsubMessageID(pmsg *pubsubpb.Message) string {
	payload := pmsg.GetData()
	if decompressed, err := snappyDecode(payload); err == nil {
		payload = decompressed
	}
	return MessageID(pmsg.GetTopic(), payload)
}
