// Package tracefile reads and writes capture files: an append-only stream of
// thread snapshots in which repeated strings are replaced by small ids from a
// bounded dictionary.
//
// A file is a header followed by self-delimiting records:
//
//	header := "TSCP" | version uvarint | flags uvarint | dictCapacity uvarint
//	record := kind byte | length uvarint | payload[length]
//
// When flags has FlagSnappy set, everything after the header is a snappy
// framed stream. Symbols inside a payload are a signed varint: a non-negative
// value references an id that is already defined, a negative value v defines
// id ^v and is followed by the string's length and bytes.
package tracefile

import "errors"

// ErrCorrupt is returned when the stream violates the format, including a
// record cut short by the end of the input.
var ErrCorrupt = errors.New("tracefile: corrupt stream")

const (
	magic         = "TSCP"
	formatVersion = 1

	// FlagSnappy marks a snappy compressed body.
	FlagSnappy = 1 << 0

	kindEvent = 0x01

	maxRecordSize     = 64 << 20
	maxDictCapacity   = 1 << 24
	defaultDictionary = 4096
)

// event field presence bits
const (
	fieldName = 1 << iota
	fieldState
	fieldStack
)

// Compression selects how the record body is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// DictionaryCapacity bounds the number of distinct symbols the writer
	// and its readers keep resident.
	DictionaryCapacity int
	Compression        Compression
}

// DefaultWriterOptions returns sensible defaults.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		DictionaryCapacity: defaultDictionary,
		Compression:        CompressionNone,
	}
}
