package gossip

import (
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pubsubpb "github.com/libp2p/go-libp2p-pubsub/pb"
)

// subscriptionRequestLimit bounds how many topics a single incoming SUBSCRIBE control message
// may name at once, rejecting anything larger outright (grounded on the teacher's
// pubsub_filter.go pubsubSubscriptionRequestLimit).
const subscriptionRequestLimit = 100

// SubscriptionFilter restricts inbound SUBSCRIBE requests to topics carrying a fork digest this
// node currently accepts (current or previous fork), rather than trusting the peer's topic list
// verbatim.
type SubscriptionFilter struct {
	mu       sync.RWMutex
	current  string
	previous string
}

var _ pubsub.SubscriptionFilter = (*SubscriptionFilter)(nil)

// NewSubscriptionFilter builds a filter accepting topics for currentForkDigest only; call
// SetForkDigests again once the node completes a fork transition.
func NewSubscriptionFilter(currentForkDigest string) *SubscriptionFilter {
	return &SubscriptionFilter{current: currentForkDigest}
}

// SetForkDigests updates the accepted digest pair, e.g. on a scheduled fork boundary.
func (f *SubscriptionFilter) SetForkDigests(current, previous string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current, f.previous = current, previous
}

// CanSubscribe implements pubsub.SubscriptionFilter: a topic is accepted if it has the shape
// "/eth2/<fork-digest>/<name>/<encoding>" and its fork digest matches the current or previous
// one this node accepts.
func (f *SubscriptionFilter) CanSubscribe(topic string) bool {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "eth2" {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return parts[2] == f.current || (f.previous != "" && parts[2] == f.previous)
}

// FilterIncomingSubscriptions implements pubsub.SubscriptionFilter.
func (f *SubscriptionFilter) FilterIncomingSubscriptions(_ peer.ID, subs []*pubsubpb.RPC_SubOpts) ([]*pubsubpb.RPC_SubOpts, error) {
	if len(subs) > subscriptionRequestLimit {
		return nil, pubsub.ErrTooManySubscriptions
	}
	return pubsub.FilterSubscriptions(subs, f.CanSubscribe), nil
}
