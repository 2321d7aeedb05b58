package gossip

import "github.com/golang/snappy"

// GossipMaxSize bounds a gossip message's uncompressed size (spec §4.6 "SSZ-encode (size must
// be <= GOSSIP_MAX_SIZE; exceeding is a programming error)").
const GossipMaxSize = 10 * 1 << 20

func snappyEncode(payload []byte) []byte {
	return snappy.Encode(nil, payload)
}

func snappyDecode(payload []byte) ([]byte, error) {
	decodedLen, err := snappy.DecodedLen(payload)
	if err != nil {
		return nil, err
	}
	if decodedLen > GossipMaxSize {
		return nil, errPayloadTooLarge
	}
	return snappy.Decode(nil, payload)
}
