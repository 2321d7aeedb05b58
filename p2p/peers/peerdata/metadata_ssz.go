package peerdata

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"
)

// metadataSSZSize is the fixed on-wire size of a Metadata value: 8-byte seq_number, an 8-byte
// attnets bitvector, a 1-byte syncnets bitvector, and an 8-byte custody-subnet count (spec
// §4.11 "response version ... widened to the current struct with default zero fields" — the
// widest, current-fork shape is always sent/expected; older peers' zero fields round-trip
// naturally since a byte-for-byte zero payload decodes to zero values).
const metadataSSZSize = 8 + 8 + 1 + 8

// MarshalSSZ implements encoder.SSZMarshaler by hand: the schema itself (field ordering, SSZ
// container rules) is a fixed, known layout for this one message type, not a generated one, so
// no code-generation dependency is warranted here.
func (m *Metadata) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, metadataSSZSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.SeqNumber)
	copy(buf[8:16], padBitvector(m.Attnets, 8))
	copy(buf[16:17], padBitvector(m.Syncnets, 1))
	binary.LittleEndian.PutUint64(buf[17:25], m.CustodySubnets)
	return buf, nil
}

// SizeSSZ implements encoder.SSZMarshaler.
func (m *Metadata) SizeSSZ() int { return metadataSSZSize }

// UnmarshalSSZ implements encoder.SSZUnmarshaler.
func (m *Metadata) UnmarshalSSZ(data []byte) error {
	if len(data) != metadataSSZSize {
		return errors.Errorf("metadata: expected %d bytes, got %d", metadataSSZSize, len(data))
	}
	m.SeqNumber = binary.LittleEndian.Uint64(data[0:8])
	m.Attnets = bitfield.Bitvector64(append([]byte(nil), data[8:16]...))
	m.Syncnets = bitfield.Bitvector4(append([]byte(nil), data[16:17]...))
	m.CustodySubnets = binary.LittleEndian.Uint64(data[17:25])
	return nil
}

func padBitvector(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}
