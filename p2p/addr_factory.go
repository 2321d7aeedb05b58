package p2p

import (
	"strings"

	"github.com/libp2p/go-libp2p/config"
	ma "github.com/multiformats/go-multiaddr"
)

// withRelayAddrs returns an AddrsFactory advertising every address via relay in addition to the
// host's own addresses.
func withRelayAddrs(relay string) config.AddrsFactory {
	return func(addrs []ma.Multiaddr) []ma.Multiaddr {
		if relay == "" {
			return addrs
		}
		var relayAddrs []ma.Multiaddr
		for _, a := range addrs {
			if strings.Contains(a.String(), "/p2p-circuit") {
				continue
			}
			relayAddr, err := ma.NewMultiaddr(relay + "/p2p-circuit" + a.String())
			if err != nil {
				log.WithError(err).Error("Failed to build relay multiaddress")
				continue
			}
			relayAddrs = append(relayAddrs, relayAddr)
		}
		if len(relayAddrs) == 0 {
			log.Warn("No relay addresses built, falling back to direct addresses")
			return addrs
		}
		return append(addrs, relayAddrs...)
	}
}
