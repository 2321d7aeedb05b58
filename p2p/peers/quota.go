package peers

import (
	"context"
	"sync"
	"time"

	"github.com/kevinms/leakybucket-go"
	"github.com/libp2p/go-libp2p-core/peer"
)

// fullReplenishTime is how long a fully-drained bucket takes to refill to capacity (spec
// §4.2: "both replenishing fully over fullReplenishTime = 5s").
const fullReplenishTime = 5 * time.Second

// QuotaManager owns the per-peer and global (per-network) Req/Resp token buckets described in
// spec §4.2. Both are non-blocking leaky-bucket collectors (github.com/kevinms/leakybucket-go,
// the same package the teacher vendors for its rate limiter — see rate_limiter_test.go); a
// failed TryConsume means the caller must await the bucket before serving the request.
type QuotaManager struct {
	maxRequestQuota int64

	mu      sync.Mutex
	global  *leakybucket.Collector
	perPeer map[peer.ID]*leakybucket.Collector

	// ThrottleCounts tags how many times each short protocol id has had to wait on a bucket,
	// surfaced for metrics (spec §4.2 "increments a throttle counter tagged by short protocol
	// id").
	throttleMu     sync.Mutex
	throttleCounts map[string]uint64
}

// NewQuotaManager builds the quota manager with per-peer capacity maxRequestQuota and global
// capacity 2*maxRequestQuota (spec §4.2), both replenishing over fullReplenishTime.
func NewQuotaManager(maxRequestQuota int64) *QuotaManager {
	ratePerSecond := float64(maxRequestQuota) / fullReplenishTime.Seconds()
	return &QuotaManager{
		maxRequestQuota: maxRequestQuota,
		global:          leakybucket.NewCollector(ratePerSecond*2, maxRequestQuota*2, time.Second, true),
		perPeer:         make(map[peer.ID]*leakybucket.Collector),
		throttleCounts:  make(map[string]uint64),
	}
}

func (q *QuotaManager) bucketFor(pid peer.ID) *leakybucket.Collector {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.perPeer[pid]
	if !ok {
		ratePerSecond := float64(q.maxRequestQuota) / fullReplenishTime.Seconds()
		b = leakybucket.NewCollector(ratePerSecond, q.maxRequestQuota, time.Second, true)
		q.perPeer[pid] = b
	}
	return b
}

// TryConsume attempts to charge one unit from both the per-peer and global buckets for pid,
// tagged by protocolID for throttle accounting. It is non-blocking: a false return means the
// caller must wait (spec §4.2 "try_consume is non-blocking; when it fails, the caller awaits
// the bucket").
func (q *QuotaManager) TryConsume(pid peer.ID, protocolID string) bool {
	peerBucket := q.bucketFor(pid)
	if peerBucket.Add(1) < 0 {
		q.recordThrottle(protocolID)
		return false
	}
	if q.global.Add(1) < 0 {
		q.recordThrottle(protocolID)
		return false
	}
	return true
}

func (q *QuotaManager) recordThrottle(protocolID string) {
	q.throttleMu.Lock()
	defer q.throttleMu.Unlock()
	q.throttleCounts[protocolID]++
}

// ThrottleCount returns how many times protocolID has been throttled.
func (q *QuotaManager) ThrottleCount(protocolID string) uint64 {
	q.throttleMu.Lock()
	defer q.throttleMu.Unlock()
	return q.throttleCounts[protocolID]
}

// Remove frees the per-peer bucket once a peer is fully disconnected.
func (q *QuotaManager) Remove(pid peer.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.perPeer, pid)
}

// Wait blocks until the per-peer bucket for pid has at least one token available, honoring
// ctx cancellation (spec §5 "Suspension points ... Bucket wait").
func (q *QuotaManager) Wait(ctx context.Context, pid peer.ID) error {
	peerBucket := q.bucketFor(pid)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if peerBucket.Add(0) >= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
