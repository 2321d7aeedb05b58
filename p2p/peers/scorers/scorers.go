// Package scorers implements the additive, integer, bounded peer scoring described in spec
// §4.2 and §7. It composes small named deltas (good status exchange, successful response,
// protocol violation, ...) into one clamped per-peer score, mirroring the teacher's
// peers/scorer_manager.go "compose several scorers, sum, round" shape but using integer
// deltas instead of the teacher's float weights, per the spec's explicit "integer score"
// requirement (an intentional divergence, not a simplification of the teacher's API shape).
package scorers

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prysmaticlabs/beacon-p2p/p2p/peers/peerdata"
)

// Score delta constants (spec §4.2, §4.4, §7). Named after the scoring reason so call sites
// read like the spec's prose ("descore PeerScorePoorRequest").
const (
	// ScoreLowLimit is the floor; crossing at or below it schedules disconnect with reason
	// PeerScoreLow (spec §3 invariants, §4.2).
	ScoreLowLimit = -100
	// ScoreHighLimit is the ceiling; a peer's score is clamped here on every update.
	ScoreHighLimit = 100

	// DeltaGoodStatus rewards a successful, fork-compatible status/handshake exchange.
	DeltaGoodStatus = 1
	// DeltaGoodValues rewards a successful, meaningful Req/Resp response.
	DeltaGoodValues = 2
	// DeltaNoResponse penalizes a peer that never answered a request.
	DeltaNoResponse = -1
	// DeltaStaleStatus penalizes a peer whose status/metadata has gone stale.
	DeltaStaleStatus = -1
	// DeltaInvalidResponse penalizes a structurally invalid (but not protocol-violating)
	// response payload.
	DeltaInvalidResponse = -3
	// DeltaUnviableFork penalizes a peer on an incompatible fork.
	DeltaUnviableFork = -10
	// DeltaPoorRequest is the "benign" Req/Resp penalty: broken connection, EOF before a
	// response, or a read timeout (spec §4.4 "Scoring feedback").
	DeltaPoorRequest = -1
	// DeltaInvalidRequest is the "protocol violation" Req/Resp penalty (spec §4.4, §7).
	DeltaInvalidRequest = -10
)

// Service aggregates score updates and decay for every tracked peer. It holds no scoring
// state itself (the running score lives in peerdata.PeerData.Score so the store remains the
// single source of truth); Service only owns the clamp/decay policy and delta vocabulary.
type Service struct {
	store         *peerdata.Store
	decayInterval time.Duration
	decayStep     int

	mu      sync.Mutex
	stopped chan struct{}
}

// Config configures the decay loop: every DecayInterval, every peer's score moves DecayStep
// closer to zero (spec §4.2 "additive-decayed peer score").
type Config struct {
	DecayInterval time.Duration
	DecayStep     int
}

// DefaultConfig mirrors the teacher's DefaultBadResponsesDecayInterval (1 hour) scaled to an
// integer step.
func DefaultConfig() *Config {
	return &Config{DecayInterval: time.Hour, DecayStep: 1}
}

// NewService wires a Service against a shared peer data store.
func NewService(store *peerdata.Store, cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{store: store, decayInterval: cfg.DecayInterval, decayStep: cfg.DecayStep}
}

// Score returns the clamped current score for pid (0 for unknown peers).
func (s *Service) Score(pid peer.ID) int {
	s.store.RLock()
	defer s.store.RUnlock()
	data, ok := s.store.PeerData(pid)
	if !ok {
		return 0
	}
	return data.GetScore()
}

// Update applies delta to pid's score, clamping to [ScoreLowLimit, ScoreHighLimit] (spec §3
// invariant: "Peer.score > ScoreHighLimit is impossible"). Returns the resulting score and
// whether it is now at or below ScoreLowLimit (caller schedules a PeerScoreLow disconnect).
func (s *Service) Update(pid peer.ID, delta int) (newScore int, lowLimitReached bool) {
	s.store.Lock()
	defer s.store.Unlock()
	data := s.store.PeerDataGetOrCreate(pid)
	data.SetScore(clamp(data.GetScore() + delta))
	return data.GetScore(), data.GetScore() <= ScoreLowLimit
}

// ResetOnReencounter zeroes a peer's score when a previously-known peer reconnects (spec
// §4.3: "Disconnected → Connecting: re-encounter — score reset to 0 until post-handshake
// increment").
func (s *Service) ResetOnReencounter(pid peer.ID) {
	s.store.Lock()
	defer s.store.Unlock()
	data := s.store.PeerDataGetOrCreate(pid)
	data.SetScore(0)
}

func clamp(v int) int {
	if v > ScoreHighLimit {
		return ScoreHighLimit
	}
	if v < ScoreLowLimit {
		return ScoreLowLimit
	}
	return v
}

// StartDecay launches the background decay loop; call once from the orchestrator's start
// path. Stop via StopDecay, which closes the loop's internal stop channel (spec §5 "every
// await point is a cancellation point").
func (s *Service) StartDecay() {
	s.mu.Lock()
	if s.stopped != nil {
		s.mu.Unlock()
		return
	}
	s.stopped = make(chan struct{})
	stop := s.stopped
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.decayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.decayAll()
			case <-stop:
				return
			}
		}
	}()
}

// StopDecay cancels the decay loop.
func (s *Service) StopDecay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
}

func (s *Service) decayAll() {
	s.store.Lock()
	defer s.store.Unlock()
	for _, pid := range s.store.Peers() {
		data, ok := s.store.PeerData(pid)
		if !ok {
			continue
		}
		score := data.GetScore()
		switch {
		case score > 0:
			data.SetScore(clamp(score - s.decayStep))
		case score < 0:
			data.SetScore(clamp(score + s.decayStep))
		}
	}
}
