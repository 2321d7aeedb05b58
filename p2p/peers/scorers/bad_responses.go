package scorers

import (
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
)

// DefaultBadResponsesThreshold mirrors the teacher's peers.DefaultBadResponsesThreshold: how
// many structurally-bad responses to tolerate before a peer is considered bad outright,
// independent of its additive score.
const DefaultBadResponsesThreshold = 6

// IncrementBadResponses records one more bad response from pid and reports whether pid has
// now crossed the bad-responses threshold.
func (s *Service) IncrementBadResponses(pid peer.ID, threshold int) (count int, isBad bool) {
	if threshold <= 0 {
		threshold = DefaultBadResponsesThreshold
	}
	s.store.Lock()
	defer s.store.Unlock()
	data := s.store.PeerDataGetOrCreate(pid)
	data.BadResponses++
	return data.BadResponses, data.BadResponses >= threshold
}

// BadResponses returns the bad-response count tracked for pid.
func (s *Service) BadResponses(pid peer.ID) (int, error) {
	s.store.RLock()
	defer s.store.RUnlock()
	data, ok := s.store.PeerData(pid)
	if !ok {
		return 0, peerdata.ErrPeerUnknown
	}
	return data.BadResponses, nil
}
