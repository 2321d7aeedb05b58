package p2p

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/p2p/discover"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/beacon-p2p/connector"
)

// Listener is the discovery v5 surface the node drives discovery through (spec §4.9),
// narrowed from go-ethereum's discover.UDPv5 to what this package actually calls.
type Listener interface {
	Self() *enode.Node
	Close()
	Lookup(enode.ID) []*enode.Node
	RandomNodes() enode.Iterator
	LocalNode() *enode.LocalNode
}

func createListener(ipAddr net.IP, privKey *ecdsa.PrivateKey, cfg *Config) (*discover.UDPv5, error) {
	udpAddr := &net.UDPAddr{IP: ipAddr, Port: int(cfg.UDPPort)}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "could not listen for discv5 UDP traffic")
	}
	localNode, err := createLocalNode(privKey, ipAddr, int(cfg.UDPPort), int(cfg.TCPPort))
	if err != nil {
		return nil, err
	}
	if cfg.HostAddress != "" {
		if hostIP := net.ParseIP(cfg.HostAddress); hostIP != nil {
			localNode.SetFallbackIP(hostIP)
		} else {
			log.Errorf("Invalid host address given: %s", cfg.HostAddress)
		}
	}
	dv5Cfg := discover.Config{PrivateKey: privKey}
	for _, addr := range cfg.Discv5BootStrapAddr {
		bootNode, err := enode.Parse(enode.ValidSchemes, addr)
		if err != nil {
			log.WithError(err).WithField("addr", addr).Error("Invalid discv5 bootstrap address")
			continue
		}
		dv5Cfg.Bootnodes = append(dv5Cfg.Bootnodes, bootNode)
	}
	return discover.ListenV5(conn, localNode, dv5Cfg)
}

func createLocalNode(privKey *ecdsa.PrivateKey, ipAddr net.IP, udpPort, tcpPort int) (*enode.LocalNode, error) {
	db, err := enode.OpenDB("")
	if err != nil {
		return nil, errors.Wrap(err, "could not open discv5 peer database")
	}
	localNode := enode.NewLocalNode(db, privKey)
	localNode.Set(enr.IP(ipAddr))
	localNode.Set(enr.UDP(udpPort))
	localNode.Set(enr.TCP(tcpPort))
	localNode.SetFallbackIP(ipAddr)
	localNode.SetFallbackUDP(udpPort)
	return localNode, nil
}

// SubnetBitfield is the set of attestation subnets the mesh monitor currently considers
// unhealthy (spec §4.9/§4.10); FindPeers accepts only nodes whose attnets ENR entry advertises
// at least one of these. Sync-committee and custody subnets are not consulted.
type SubnetBitfield map[uint64]bool

// DiscoveryAdapter wraps a discv5 Listener to produce PeerAddress candidates for the connector,
// optionally restricted by a needy-subnets filter. It applies no peer-score filter.
type DiscoveryAdapter struct {
	listener Listener
	pool     *connector.Pool
}

// NewDiscoveryAdapter builds an adapter feeding discovered candidates into pool.
func NewDiscoveryAdapter(listener Listener, pool *connector.Pool) *DiscoveryAdapter {
	return &DiscoveryAdapter{listener: listener, pool: pool}
}

// FindPeers iterates discv5 random nodes, filters by subnetFilter (nil accepts everything), and
// enqueues up to max accepted candidates onto the connector pool (spec §4.9).
func (d *DiscoveryAdapter) FindPeers(ctx context.Context, subnetFilter SubnetBitfield, max int) int {
	if d.listener == nil {
		return 0
	}
	iterator := d.listener.RandomNodes()
	defer iterator.Close()

	enqueued := 0
	for enqueued < max {
		if ctx.Err() != nil {
			return enqueued
		}
		if !iterator.Next() {
			return enqueued
		}
		node := iterator.Node()
		if node.IP() == nil {
			continue
		}
		if len(subnetFilter) > 0 && !nodeMatchesSubnets(node.Record(), subnetFilter) {
			continue
		}
		addr, id, err := convertToAddrInfo(node)
		if err != nil {
			continue
		}
		if d.pool.Enqueue(connector.PeerAddress{ID: id, Addr: addr}) {
			enqueued++
		}
	}
	return enqueued
}

func nodeMatchesSubnets(record *enr.Record, filter SubnetBitfield) bool {
	bitV, err := readAttSubnets(record)
	if err != nil {
		return false
	}
	for idx := range filter {
		if int(idx) < len(bitV)*8 && bitAt(bitV, idx) {
			return true
		}
	}
	return false
}

func bitAt(bitV []byte, i uint64) bool {
	byteIdx := i / 8
	if int(byteIdx) >= len(bitV) {
		return false
	}
	return bitV[byteIdx]&(1<<(i%8)) != 0
}

func convertToAddrInfo(node *enode.Node) (ma.Multiaddr, peer.ID, error) {
	ip4 := node.IP().To4()
	if ip4 == nil {
		return nil, "", errors.Errorf("node has no IPv4 address: %s", node.IP())
	}
	pubKey, err := convertToInterfacePubkey(node.Pubkey())
	if err != nil {
		return nil, "", err
	}
	id, err := peer.IDFromPublicKey(pubKey)
	if err != nil {
		return nil, "", errors.Wrap(err, "could not derive peer id")
	}
	addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d/p2p/%s", ip4, node.TCP(), id))
	if err != nil {
		return nil, "", errors.Wrap(err, "could not build multiaddr")
	}
	return addr, id, nil
}

func parseBootStrapAddrs(addrs []string) (discv5Nodes []string) {
	for _, addr := range addrs {
		if addr == "" {
			continue
		}
		if _, err := enode.Parse(enode.ValidSchemes, addr); err == nil {
			discv5Nodes = append(discv5Nodes, addr)
			continue
		}
		log.Errorf("Invalid bootstrap address: %s", addr)
	}
	if len(discv5Nodes) == 0 {
		log.Warn("No bootstrap addresses supplied")
	}
	return discv5Nodes
}
