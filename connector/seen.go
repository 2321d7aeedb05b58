// Package connector implements the bounded dial-worker pool and seen-table (spec §4.8), plus
// the bounded peer pool (spec §4.7). Grounded on the teacher's beacon-chain/p2p connection
// management style (config.go's MaxPeers/QueueSize knobs), on patrickmn/go-cache for the
// TTL-expiring seen table (no size bound) and on hashicorp/golang-lru for the pool's bounded
// pending-dial set.
package connector

import (
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	gocache "github.com/patrickmn/go-cache"
)

// DisconnectReason names why a peer was last dropped, driving the seen-table TTL that keeps the
// connector from immediately re-dialing it (spec §4.8 "Seen-table TTLs").
type DisconnectReason string

const (
	ReasonTimeout           DisconnectReason = "Timeout"
	ReasonDead              DisconnectReason = "Dead"
	ReasonIrrelevantNetwork DisconnectReason = "IrrelevantNetwork"
	ReasonClientShutDown    DisconnectReason = "ClientShutDown"
	ReasonFaultOrError      DisconnectReason = "FaultOrError"
	ReasonScoreLow          DisconnectReason = "ScoreLow"
	ReasonBenignReconnect   DisconnectReason = "BenignReconnect"
)

// seenTTL implements spec §4.8's design-level TTL table verbatim.
var seenTTL = map[DisconnectReason]time.Duration{
	ReasonTimeout:           5 * time.Minute,
	ReasonDead:              5 * time.Minute,
	ReasonIrrelevantNetwork: 24 * time.Hour,
	ReasonClientShutDown:    10 * time.Minute,
	ReasonFaultOrError:      10 * time.Minute,
	ReasonScoreLow:          60 * time.Minute,
	ReasonBenignReconnect:   1 * time.Minute,
}

// SeenTable records the last disposition of every peer.ID the connector has dialed or
// disconnected, each entry expiring per seenTTL so the peer becomes eligible for another dial
// attempt (spec §4.8: "success expires quickly to allow reconnect").
type SeenTable struct {
	cache *gocache.Cache
}

// NewSeenTable builds an empty seen-table with a background cleanup sweep every minute.
func NewSeenTable() *SeenTable {
	return &SeenTable{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Mark records reason for pid with its associated TTL.
func (t *SeenTable) Mark(pid peer.ID, reason DisconnectReason) {
	ttl, ok := seenTTL[reason]
	if !ok {
		ttl = ReasonFaultOrErrorDefaultTTL
	}
	t.cache.Set(pid.String(), reason, ttl)
}

// ReasonFaultOrErrorDefaultTTL backs any DisconnectReason value this table doesn't recognize
// (defensive default, never expected to be reached for the reasons this package defines).
const ReasonFaultOrErrorDefaultTTL = 10 * time.Minute

// Seen reports whether pid has an unexpired seen-table entry and, if so, why.
func (t *SeenTable) Seen(pid peer.ID) (DisconnectReason, bool) {
	v, ok := t.cache.Get(pid.String())
	if !ok {
		return "", false
	}
	return v.(DisconnectReason), true
}

// Forget removes pid's entry immediately, bypassing its TTL (used when a peer is explicitly
// re-admitted, e.g. an operator-configured direct peer).
func (t *SeenTable) Forget(pid peer.ID) {
	t.cache.Delete(pid.String())
}
