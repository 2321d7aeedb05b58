package p2p

import (
	"crypto/ecdsa"
	"fmt"
	"net"

	gethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// convertToInterfacePrivkey adapts a go-ethereum secp256k1 private key to the libp2p crypto.PrivKey
// interface libp2p's identity option expects.
func convertToInterfacePrivkey(privkey *ecdsa.PrivateKey) (crypto.PrivKey, error) {
	return crypto.UnmarshalSecp256k1PrivateKey(gethCrypto.FromECDSA(privkey))
}

// convertToInterfacePubkey adapts a go-ethereum secp256k1 public key to the libp2p crypto.PubKey
// interface, used when deriving a peer.ID from a discovered node's ENR public key.
func convertToInterfacePubkey(pubkey *ecdsa.PublicKey) (crypto.PubKey, error) {
	return crypto.UnmarshalSecp256k1PublicKey(gethCrypto.FromECDSAPub(pubkey))
}

// buildOptions assembles the libp2p host options for cfg's listen address and identity.
func buildOptions(cfg *Config, ip net.IP, priKey *ecdsa.PrivateKey) ([]libp2p.Option, error) {
	listen, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", ip, cfg.TCPPort))
	if err != nil {
		return nil, fmt.Errorf("failed to build p2p listen address: %w", err)
	}
	options := []libp2p.Option{
		privKeyOption(priKey),
		libp2p.ListenAddrs(listen),
	}
	if cfg.EnableUPnP {
		options = append(options, libp2p.NATPortMap())
	}
	if cfg.RelayNodeAddr != "" {
		options = append(options, libp2p.AddrsFactory(withRelayAddrs(cfg.RelayNodeAddr)))
	}
	return options, nil
}

// privKeyOption sets the host's static identity from priKey.
func privKeyOption(privKey *ecdsa.PrivateKey) libp2p.Option {
	return func(c *libp2p.Config) error {
		converted, err := convertToInterfacePrivkey(privKey)
		if err != nil {
			return err
		}
		id, err := peer.IDFromPrivateKey(converted)
		if err != nil {
			return err
		}
		log.WithField("peerID", id.Pretty()).Info("Private key loaded, announcing peer id")
		return c.Apply(libp2p.Identity(converted))
	}
}
