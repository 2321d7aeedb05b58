package p2p

import (
	"time"

	"github.com/libp2p/go-libp2p-core/host"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var p2pTopicPeerCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "p2p_topic_peer_count",
	Help: "The number of peers known to pubsub for a topic",
}, []string{"topic"})

var p2pPendingDials = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "p2p_pending_dial_count",
	Help: "The number of dial candidates waiting in the connector queue",
})

// registerMetrics wires the process-wide peer-count gauge and starts the periodic topic-peer
// poller for s (spec DOMAIN STACK: prometheus/client_golang).
func registerMetrics(s *Service) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "p2p_peer_count",
		Help: "The number of currently connected peers",
	}, func() float64 {
		return float64(peerCount(s.host))
	})

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.updateTopicPeerCounts()
				p2pPendingDials.Set(float64(s.pool.QueueLen()))
			}
		}
	}()
}

func peerCount(h host.Host) int {
	return len(h.Network().Peers())
}
