package gossip

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/p2p/encoder"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "gossip")

var errPayloadTooLarge = errors.New("gossip: decompressed payload exceeds GossipMaxSize")

// ErrNoPeers is the soft error Broadcast returns when publish succeeded locally but reached no
// subscribers and the topic is not in a known low-peer category (spec §4.6 "Broadcast").
var ErrNoPeers = errors.New("gossip: no peers received the message")

// Validator is the synchronous decision function a caller registers for one topic (spec §4.6
// "Validation contract"): it receives the already decompressed-and-decoded application message
// and decides whether the network should keep propagating it.
type Validator func(ctx context.Context, from peer.ID, decoded interface{}) pubsub.ValidationResult

// Decoder builds a fresh zero-value message for a topic and decodes raw SSZ bytes into it,
// returning the decoded value as interface{} for the Validator (schema itself stays out of
// scope, spec §1).
type Decoder func(ssz []byte) (interface{}, error)

// topicState tracks one joined topic: its pubsub handle, live subscription (if any), and the
// decoder/validator pair that makes it "validated" (spec §4.6 "Subscription").
type topicState struct {
	handle    *pubsub.Topic
	sub       *pubsub.Subscription
	decoder   Decoder
	validator Validator
	lowPeer   bool
}

// Pipeline is the gossip pipeline: validated-topic bookkeeping, the synchronous validation
// contract, and broadcast/publish, all layered over one go-libp2p-pubsub router.
type Pipeline struct {
	ps  *pubsub.PubSub
	enc encoder.NetworkEncoding

	mu     sync.RWMutex
	topics map[string]*topicState
}

// NewPubSub builds a gossipsub router over host with the message-id function wired per spec
// §4.6, ready to be handed to NewPipeline.
func NewPubSub(ctx context.Context, h host.Host, opts ...pubsub.Option) (*pubsub.PubSub, error) {
	allOpts := append([]pubsub.Option{pubsub.WithMessageIdFn(pubsubMessageID)}, opts...)
	return pubsub.NewGossipSub(ctx, h, allOpts...)
}

// NewPipeline wraps an already-constructed gossipsub router.
func NewPipeline(ps *pubsub.PubSub, enc encoder.NetworkEncoding) *Pipeline {
	return &Pipeline{ps: ps, enc: enc, topics: make(map[string]*topicState)}
}

func (p *Pipeline) fullTopic(topic string) string {
	return topic + p.enc.ProtocolSuffix()
}

func (p *Pipeline) joinLocked(topic string) (*topicState, error) {
	if st, ok := p.topics[topic]; ok {
		return st, nil
	}
	handle, err := p.ps.Join(p.fullTopic(topic))
	if err != nil {
		return nil, errors.Wrapf(err, "could not join topic %s", topic)
	}
	st := &topicState{handle: handle}
	p.topics[topic] = st
	return st, nil
}

// SubscribeTopic registers decoder/validator for topic and starts reading its subscription,
// dispatching every accepted message to onAccept. A topic becomes "validated" exactly when this
// is called (spec §4.6 "Subscription": "validated exactly when a per-message validator is
// registered"). lowPeerCategory marks topics exempt from the Broadcast "no peers" soft error
// (e.g. rarely-subscribed subnets).
func (p *Pipeline) SubscribeTopic(ctx context.Context, topic string, decoder Decoder, validator Validator, lowPeerCategory bool, onAccept func(from peer.ID, decoded interface{})) error {
	p.mu.Lock()
	st, err := p.joinLocked(topic)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	st.decoder = decoder
	st.validator = validator
	st.lowPeer = lowPeerCategory

	if err := p.ps.RegisterTopicValidator(p.fullTopic(topic), p.wrapValidator(topic)); err != nil {
		p.mu.Unlock()
		return errors.Wrap(err, "could not register topic validator")
	}
	sub, err := st.handle.Subscribe()
	if err != nil {
		p.mu.Unlock()
		return errors.Wrap(err, "could not subscribe to topic")
	}
	st.sub = sub
	p.mu.Unlock()

	go p.readLoop(ctx, topic, sub, onAccept)
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, topic string, sub *pubsub.Subscription, onAccept func(from peer.ID, decoded interface{})) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			log.WithError(err).WithField("topic", topic).Debug("subscription closed")
			return
		}
		if onAccept == nil || msg.ValidatorData == nil {
			continue
		}
		// ValidatorEx already ran synchronous validation and stashed the decoded value; the
		// pubsub router only forwards messages that were Accepted.
		onAccept(msg.GetFrom(), msg.ValidatorData)
	}
}

// wrapValidator implements spec §4.6's "Validation contract" steps 1-4 as a pubsub.ValidatorEx:
// decompress (bounded), SSZ-decode, release the decompressed buffer, then invoke the user
// validator with the decoded value.
func (p *Pipeline) wrapValidator(topic string) pubsub.ValidatorEx {
	return func(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
		_, span := trace.StartSpan(ctx, "gossip.validate")
		defer span.End()

		p.mu.RLock()
		st := p.topics[topic]
		p.mu.RUnlock()
		if st == nil || st.decoder == nil || st.validator == nil {
			return pubsub.ValidationReject
		}

		decompressed, err := snappyDecode(msg.GetData())
		if err != nil {
			return pubsub.ValidationReject
		}
		decoded, err := st.decoder(decompressed)
		decompressed = nil // release before the user validator runs (spec: large blocks dominate memory)
		if err != nil {
			return pubsub.ValidationReject
		}
		result := st.validator(ctx, from, decoded)
		if result == pubsub.ValidationAccept {
			msg.ValidatorData = decoded
		}
		return result
	}
}

// Publish SSZ-encodes msg, snappy-encodes it, and publishes it to topic (spec §4.6
// "Broadcast"). Returns ErrNoPeers when nobody was reachable and topic is not a known low-peer
// category.
func (p *Pipeline) Publish(ctx context.Context, topic string, msg encoder.SSZMarshaler) error {
	if msg.SizeSSZ() > GossipMaxSize {
		return errors.New("gossip: message exceeds GossipMaxSize (programming error)")
	}
	payload, err := msg.MarshalSSZ()
	if err != nil {
		return errors.Wrap(err, "could not marshal gossip message")
	}
	compressed := snappyEncode(payload)

	p.mu.Lock()
	st, err := p.joinLocked(topic)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if err := st.handle.Publish(ctx, compressed); err != nil {
		return errors.Wrap(err, "could not publish message")
	}
	if len(st.handle.ListPeers()) == 0 && !st.lowPeer {
		return ErrNoPeers
	}
	return nil
}

// LeaveTopic tears down a joined topic's subscription and pubsub handle.
func (p *Pipeline) LeaveTopic(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.topics[topic]
	if !ok {
		return nil
	}
	if st.sub != nil {
		st.sub.Cancel()
	}
	delete(p.topics, topic)
	return st.handle.Close()
}
