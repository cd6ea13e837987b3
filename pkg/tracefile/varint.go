package tracefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Integers are LEB128: seven payload bits per byte, high bit set on every
// byte but the last, least significant group first. Signed values are zigzag
// mapped so that small magnitudes of either sign stay short.

// AppendUvarint appends the encoding of v to b.
func AppendUvarint(b []byte, v uint64) []byte {
	return binary.AppendUvarint(b, v)
}

// AppendVarint appends the zigzag encoding of v to b.
func AppendVarint(b []byte, v int64) []byte {
	return binary.AppendVarint(b, v)
}

// ReadUvarint reads one unsigned varint. A clean io.EOF is returned only if
// no byte was consumed; a partial or overlong value is corrupt.
func ReadUvarint(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, varintErr(err)
	}
	return v, nil
}

// ReadVarint reads one zigzag encoded signed varint.
func ReadVarint(r io.ByteReader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, varintErr(err)
	}
	return v, nil
}

func varintErr(err error) error {
	switch {
	case err == io.EOF:
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: truncated varint", ErrCorrupt)
	default:
		// binary reports overflow with its own error value
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
}
