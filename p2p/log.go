package p2p

import (
	"strings"

	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "p2p")

func logIPAddr(id peer.ID, addrs ...ma.Multiaddr) {
	for _, addr := range addrs {
		if !(strings.Contains(addr.String(), "/ip4/") || strings.Contains(addr.String(), "/ip6/")) {
			continue
		}
		log.WithField("multiAddr", addr.String()+"/p2p/"+id.String()).Info("Node started p2p server")
	}
}
