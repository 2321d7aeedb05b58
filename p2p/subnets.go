package p2p

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/prysmaticlabs/go-bitfield"
)

const attSubnetEnrKey = "attnets"
const syncSubnetEnrKey = "syncnets"

// readAttSubnets parses the attnets ENR entry into a raw bitfield byte slice, used both by the
// subnet-biased discovery filter and FindPeersWithSubnet.
func readAttSubnets(record *enr.Record) ([]byte, error) {
	bitV := bitfield.NewBitvector64()
	if err := record.Load(enr.WithEntry(attSubnetEnrKey, &bitV)); err != nil {
		return nil, err
	}
	return bitV, nil
}

// updateSubnetRecordWithMetadata rewrites the local node's attnets ENR entry and bumps the
// node's own metadata sequence number (spec §4.9 "updates own ENR on metadata change").
func (s *Service) updateSubnetRecordWithMetadata(bitV bitfield.Bitvector64) {
	s.metadataMu.Lock()
	s.attnets = bitV
	s.metadataMu.Unlock()
	s.bumpMetadataSeq()

	if s.dv5Listener == nil {
		return
	}
	s.dv5Listener.LocalNode().Set(enr.WithEntry(attSubnetEnrKey, &bitV))
}

// FindPeersWithSubnet blocks, polling discovery and the connector, until at least threshold
// peers are subscribed to topic or ctx is done (spec §4.9/§S5).
func (s *Service) FindPeersWithSubnet(ctx context.Context, topic string, subnet, threshold uint64) (bool, error) {
	if s.discovery == nil {
		return false, nil
	}
	fullTopic := topic + s.Encoding().ProtocolSuffix()
	for {
		if uint64(len(s.ps.ListPeers(fullTopic))) >= threshold {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		s.discovery.FindPeers(ctx, SubnetBitfield{subnet: true}, 16)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (s *Service) hasPeerWithSubnet(topic string) bool {
	return len(s.ps.ListPeers(topic+s.Encoding().ProtocolSuffix())) >= 1
}

func (s *Service) subnetLocker(i uint64) *sync.RWMutex {
	s.subnetsLockLock.Lock()
	defer s.subnetsLockLock.Unlock()
	l, ok := s.subnetsLock[i]
	if !ok {
		l = &sync.RWMutex{}
		s.subnetsLock[i] = l
	}
	return l
}
