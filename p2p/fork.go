package p2p

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/pkg/errors"
)

const eth2EnrKey = "eth2"
const enrForkIDSize = 4 + 4 + 8

// enrForkID is ssz-encoded into the local node's ENR under eth2EnrKey; peers only connect when
// their enrForkID's current digest matches ours (spec §3 "fork digests").
type enrForkID struct {
	CurrentForkDigest [4]byte
	NextForkVersion   [4]byte
	NextForkEpoch     uint64
}

// marshalSSZ hand-encodes the fixed 16-byte layout directly, since SSZ code-generation
// libraries are out of scope for this small, fixed-width type (see peerdata.Metadata's codec
// for the same rationale).
func (f *enrForkID) marshalSSZ() []byte {
	buf := make([]byte, enrForkIDSize)
	copy(buf[0:4], f.CurrentForkDigest[:])
	copy(buf[4:8], f.NextForkVersion[:])
	binary.LittleEndian.PutUint64(buf[8:16], f.NextForkEpoch)
	return buf
}

func (f *enrForkID) unmarshalSSZ(data []byte) error {
	if len(data) != enrForkIDSize {
		return errors.Errorf("enrForkID: expected %d bytes, got %d", enrForkIDSize, len(data))
	}
	copy(f.CurrentForkDigest[:], data[0:4])
	copy(f.NextForkVersion[:], data[4:8])
	f.NextForkEpoch = binary.LittleEndian.Uint64(data[8:16])
	return nil
}

// addForkEntry stamps node's ENR with the current fork digest, next fork version, and next fork
// epoch (spec §3, §4.9).
func addForkEntry(node *enode.LocalNode, digest, nextVersion [4]byte, nextEpoch uint64) {
	id := &enrForkID{CurrentForkDigest: digest, NextForkVersion: nextVersion, NextForkEpoch: nextEpoch}
	node.Set(enr.WithEntry(eth2EnrKey, id.marshalSSZ()))
}

// retrieveForkEntry reads the eth2EnrKey entry back out of record.
func retrieveForkEntry(record *enr.Record) (*enrForkID, error) {
	raw := make([]byte, enrForkIDSize)
	if err := record.Load(enr.WithEntry(eth2EnrKey, &raw)); err != nil {
		return nil, errors.Wrap(err, "could not load eth2 ENR entry")
	}
	id := &enrForkID{}
	if err := id.unmarshalSSZ(raw); err != nil {
		return nil, err
	}
	return id, nil
}
