package tracefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/symtab"
)

// Writer encodes snapshots to a capture stream. It is not safe for
// concurrent use.
type Writer struct {
	bw      *bufio.Writer
	sw      *snappy.Writer
	dict    *symtab.Dictionary
	payload []byte
	rec     []byte
	records int64
	err     error
	// rejected is set once a record was dropped after its symbols were
	// interned. The dictionary no longer matches the stream, so no later
	// record can be encoded, but earlier ones are still flushed.
	rejected error
	closed   bool
}

// NewWriter writes the stream header to w and returns a writer for the
// records that follow. Closing the Writer does not close w.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	if opts.DictionaryCapacity <= 0 {
		opts.DictionaryCapacity = defaultDictionary
	}
	if opts.DictionaryCapacity > maxDictCapacity {
		return nil, fmt.Errorf("dictionary capacity %d exceeds %d", opts.DictionaryCapacity, maxDictCapacity)
	}

	var flags uint64
	switch opts.Compression {
	case CompressionNone:
	case CompressionSnappy:
		flags |= FlagSnappy
	default:
		return nil, fmt.Errorf("unknown compression %d", opts.Compression)
	}

	hdr := []byte(magic)
	hdr = AppendUvarint(hdr, formatVersion)
	hdr = AppendUvarint(hdr, flags)
	hdr = AppendUvarint(hdr, uint64(opts.DictionaryCapacity))

	tw := &Writer{dict: symtab.New(opts.DictionaryCapacity)}
	if flags&FlagSnappy != 0 {
		if _, err := w.Write(hdr); err != nil {
			return nil, fmt.Errorf("cannot write header: %w", err)
		}
		tw.sw = snappy.NewBufferedWriter(w)
		tw.bw = bufio.NewWriterSize(tw.sw, 64<<10)
	} else {
		tw.bw = bufio.NewWriterSize(w, 64<<10)
		if _, err := tw.bw.Write(hdr); err != nil {
			return nil, fmt.Errorf("cannot write header: %w", err)
		}
	}
	return tw, nil
}

// Write appends one record. The record is encoded in full before any of it
// reaches the output, so a reader never observes a header without its body.
func (w *Writer) Write(s *snapshot.ThreadSnapshot) error {
	if w.closed {
		return errors.New("tracefile: write to closed writer")
	}
	if w.err != nil {
		return w.err
	}
	if w.rejected != nil {
		return w.rejected
	}
	if s.State > snapshot.StateTerminated {
		return fmt.Errorf("tracefile: invalid thread state %d", uint8(s.State))
	}

	w.payload = w.appendEvent(w.payload[:0], s)
	if len(w.payload) > maxRecordSize {
		w.rejected = fmt.Errorf("tracefile: record of %d bytes exceeds %d", len(w.payload), maxRecordSize)
		return w.rejected
	}

	w.rec = append(w.rec[:0], kindEvent)
	w.rec = AppendUvarint(w.rec, uint64(len(w.payload)))
	w.rec = append(w.rec, w.payload...)
	if _, err := w.bw.Write(w.rec); err != nil {
		// The dictionary has moved on; the stream cannot be resumed.
		w.err = fmt.Errorf("cannot write record: %w", err)
		return w.err
	}
	w.records++
	return nil
}

func (w *Writer) appendEvent(b []byte, s *snapshot.ThreadSnapshot) []byte {
	var fields uint64
	if s.HasName {
		fields |= fieldName
	}
	if s.State != snapshot.StateUnset {
		fields |= fieldState
	}
	if s.Stack != nil {
		fields |= fieldStack
	}

	b = AppendUvarint(b, fields)
	b = AppendVarint(b, s.Timestamp)
	b = AppendVarint(b, s.ThreadID)
	if s.HasName {
		b = w.appendSymbol(b, s.Name)
	}
	if s.State != snapshot.StateUnset {
		b = append(b, byte(s.State))
	}

	var present uint64
	for _, v := range s.Counters {
		if v != snapshot.Absent {
			present++
		}
	}
	b = AppendUvarint(b, present)
	for i, v := range s.Counters {
		if v != snapshot.Absent {
			b = AppendUvarint(b, uint64(i))
			b = AppendVarint(b, v)
		}
	}

	b = AppendUvarint(b, uint64(len(s.Tags)))
	for _, t := range s.Tags {
		b = w.appendSymbol(b, t.Name)
		b = AppendVarint(b, t.Value)
	}

	if s.Stack != nil {
		b = AppendUvarint(b, uint64(s.Stack.Depth()))
		for i := 0; i < s.Stack.Depth(); i++ {
			f := s.Stack.At(i)
			b = w.appendSymbol(b, f.Class)
			b = w.appendSymbol(b, f.Method)
			if f.File == "" {
				b = AppendUvarint(b, 0)
			} else {
				b = AppendUvarint(b, 1)
				b = w.appendSymbol(b, f.File)
			}
			b = AppendVarint(b, int64(f.Line))
		}
	}
	return b
}

func (w *Writer) appendSymbol(b []byte, s string) []byte {
	id := w.dict.Intern(s)
	b = AppendVarint(b, int64(id))
	if id < 0 {
		b = AppendUvarint(b, uint64(len(s)))
		b = append(b, s...)
	}
	return b
}

// Records returns the number of records written so far.
func (w *Writer) Records() int64 {
	return w.records
}

// Flush pushes every complete record to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		w.err = fmt.Errorf("cannot flush: %w", err)
		return w.err
	}
	if w.sw != nil {
		if err := w.sw.Flush(); err != nil {
			w.err = fmt.Errorf("cannot flush: %w", err)
			return w.err
		}
	}
	return nil
}

// Close flushes buffered records and finalizes the stream. It is safe to
// call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if err := w.Flush(); err != nil {
		return err
	}
	if w.sw != nil {
		if err := w.sw.Close(); err != nil {
			w.err = fmt.Errorf("cannot close snappy stream: %w", err)
			return w.err
		}
	}
	return nil
}
