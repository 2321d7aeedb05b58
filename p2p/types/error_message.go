package types

// ErrorMessage is an SSZ-encoded bounded byte list (spec §6), used as the payload of a
// non-Success response chunk. It is just the raw message bytes: the bound and
// ASCII-or-hex rendering are enforced/performed by the encoder package.
type ErrorMessage []byte

// MarshalSSZ implements encoder.SSZMarshaler.
func (m ErrorMessage) MarshalSSZ() ([]byte, error) {
	return m, nil
}

// SizeSSZ implements encoder.SSZMarshaler.
func (m ErrorMessage) SizeSSZ() int {
	return len(m)
}

// UnmarshalSSZ implements encoder.SSZUnmarshaler.
func (m *ErrorMessage) UnmarshalSSZ(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}
