package tracefile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// Reader decodes a capture stream record by record. It is not safe for
// concurrent use.
type Reader struct {
	br       *bufio.Reader
	flags    uint64
	dictCap  int
	symbols  []string
	payload  []byte
	cur      snapshot.ThreadSnapshot
	loaded   bool
	done     bool
	err      error
	consumed int64
}

// NewReader reads and validates the stream header. An empty input is a
// valid stream without records.
func NewReader(r io.Reader) (*Reader, error) {
	tr := &Reader{br: bufio.NewReaderSize(r, 64<<10)}
	tr.cur.Reset()

	var m [len(magic)]byte
	n, err := io.ReadFull(tr.br, m[:])
	if err == io.EOF && n == 0 {
		tr.done = true
		return tr, nil
	}
	if err != nil {
		return nil, corrupt(err, "header")
	}
	if string(m[:]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, m[:])
	}

	version, err := ReadUvarint(tr.br)
	if err != nil {
		return nil, corrupt(err, "header")
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	if tr.flags, err = ReadUvarint(tr.br); err != nil {
		return nil, corrupt(err, "header")
	}
	if tr.flags&^uint64(FlagSnappy) != 0 {
		return nil, fmt.Errorf("%w: unknown flags %#x", ErrCorrupt, tr.flags)
	}
	dictCap, err := ReadUvarint(tr.br)
	if err != nil {
		return nil, corrupt(err, "header")
	}
	if dictCap == 0 || dictCap > maxDictCapacity {
		return nil, fmt.Errorf("%w: dictionary capacity %d", ErrCorrupt, dictCap)
	}
	tr.dictCap = int(dictCap)

	if tr.flags&FlagSnappy != 0 {
		tr.br = bufio.NewReaderSize(snappy.NewReader(tr.br), 64<<10)
	}
	return tr, nil
}

// corrupt maps a read error inside a structure to ErrCorrupt. Errors that
// are not about the shape of the data are passed through.
func corrupt(err error, what string) error {
	switch {
	case errors.Is(err, ErrCorrupt):
		return fmt.Errorf("%s: %w", what, err)
	case err == io.EOF, errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %s truncated", ErrCorrupt, what)
	case errors.Is(err, snappy.ErrCorrupt), errors.Is(err, snappy.ErrUnsupported):
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, what, err)
	default:
		return fmt.Errorf("cannot read %s: %w", what, err)
	}
}

// Compressed reports whether the body is snappy compressed.
func (r *Reader) Compressed() bool {
	return r.flags&FlagSnappy != 0
}

// DictionaryCapacity returns the capacity the writer used.
func (r *Reader) DictionaryCapacity() int {
	return r.dictCap
}

// LoadNext advances to the next record. It returns false with a nil error at
// a clean end of stream, and false with an error wrapping ErrCorrupt when the
// stream is malformed or ends inside a record. Once it returns false it keeps
// doing so.
func (r *Reader) LoadNext() (bool, error) {
	r.loaded = false
	if r.done {
		return false, r.err
	}

	kind, err := r.br.ReadByte()
	if err == io.EOF {
		r.done = true
		return false, nil
	}
	if err != nil {
		return r.fail(corrupt(err, "record"))
	}
	if kind != kindEvent {
		return r.fail(fmt.Errorf("%w: unknown record kind %#x at record %d", ErrCorrupt, kind, r.consumed))
	}

	size, err := ReadUvarint(r.br)
	if err != nil {
		return r.fail(corrupt(err, "record length"))
	}
	if size > maxRecordSize {
		return r.fail(fmt.Errorf("%w: record length %d exceeds %d", ErrCorrupt, size, maxRecordSize))
	}
	if cap(r.payload) < int(size) {
		r.payload = make([]byte, size)
	}
	r.payload = r.payload[:size]
	if _, err := io.ReadFull(r.br, r.payload); err != nil {
		return r.fail(corrupt(err, "record body"))
	}

	if err := r.decodeEvent(r.payload); err != nil {
		return r.fail(fmt.Errorf("record %d: %w", r.consumed, err))
	}
	r.consumed++
	r.loaded = true
	return true, nil
}

func (r *Reader) fail(err error) (bool, error) {
	r.done = true
	r.err = err
	return false, err
}

func (r *Reader) decodeEvent(p []byte) error {
	d := decoder{buf: p, reader: r}
	s := &r.cur
	s.Reset()

	fields := d.uvarint()
	s.Timestamp = d.varint()
	s.ThreadID = d.varint()
	if fields&fieldName != 0 {
		s.SetName(d.symbol())
	}
	if fields&fieldState != 0 {
		st := snapshot.ThreadState(d.u8())
		if st == snapshot.StateUnset || st > snapshot.StateTerminated {
			d.fail("bad thread state %d", st)
		}
		s.State = st
	}

	counters := d.uvarint()
	if counters > snapshot.MaxCounters {
		d.fail("%d counters", counters)
	}
	for i := uint64(0); i < counters && d.err == nil; i++ {
		slot := d.uvarint()
		if slot >= snapshot.MaxCounters {
			d.fail("counter slot %d", slot)
			break
		}
		s.Counters[slot] = d.varint()
	}

	ntags := d.uvarint()
	if ntags > uint64(len(p)) {
		d.fail("%d tags", ntags)
	}
	for i := uint64(0); i < ntags && d.err == nil; i++ {
		name := d.symbol()
		s.Tags = append(s.Tags, snapshot.Tag{Name: name, Value: d.varint()})
	}

	if fields&fieldStack != 0 {
		depth := d.uvarint()
		if depth > uint64(len(p)) {
			d.fail("stack depth %d", depth)
		}
		var frames []snapshot.StackFrame
		if d.err == nil {
			frames = make([]snapshot.StackFrame, 0, depth)
		}
		for i := uint64(0); i < depth && d.err == nil; i++ {
			var f snapshot.StackFrame
			f.Class = d.symbol()
			f.Method = d.symbol()
			switch d.uvarint() {
			case 0:
			case 1:
				f.File = d.symbol()
			default:
				d.fail("bad file marker")
			}
			f.Line = int(d.varint())
			frames = append(frames, f)
		}
		if d.err == nil {
			s.Stack = snapshot.NewFrameList(frames...)
		}
	}

	if d.err == nil && d.off != len(p) {
		d.fail("%d trailing bytes", len(p)-d.off)
	}
	return d.err
}

// decoder walks one payload. The first error sticks and turns every later
// read into a no-op.
type decoder struct {
	buf    []byte
	off    int
	err    error
	reader *Reader
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.fail("bad varint at offset %d", d.off)
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		d.fail("bad varint at offset %d", d.off)
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) u8() byte {
	if d.err != nil {
		return 0
	}
	if d.off >= len(d.buf) {
		d.fail("payload truncated")
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) symbol() string {
	v := d.varint()
	if d.err != nil {
		return ""
	}
	r := d.reader
	if v >= 0 {
		if v >= int64(len(r.symbols)) {
			d.fail("reference to undefined symbol %d", v)
			return ""
		}
		return r.symbols[v]
	}

	id := ^v
	if id >= int64(r.dictCap) {
		d.fail("symbol id %d outside dictionary of %d", id, r.dictCap)
		return ""
	}
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if n > uint64(len(d.buf)-d.off) {
		d.fail("symbol of %d bytes overruns payload", n)
		return ""
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)

	// ids are dense, so a new id is at most one past the end
	switch {
	case id < int64(len(r.symbols)):
		r.symbols[id] = s
	case id == int64(len(r.symbols)):
		r.symbols = append(r.symbols, s)
	default:
		d.fail("symbol id %d skips ahead of %d", id, len(r.symbols))
		return ""
	}
	return s
}

// IsLoaded reports whether a current record is available.
func (r *Reader) IsLoaded() bool {
	return r.loaded
}

// ThreadID returns the current record's thread id.
func (r *Reader) ThreadID() int64 {
	return r.cur.ThreadID
}

// ThreadName returns the current record's thread name, if it has one.
func (r *Reader) ThreadName() (string, bool) {
	return r.cur.Name, r.cur.HasName
}

// Timestamp returns the current record's timestamp in milliseconds.
func (r *Reader) Timestamp() int64 {
	return r.cur.Timestamp
}

// State returns the current record's thread state.
func (r *Reader) State() snapshot.ThreadState {
	return r.cur.State
}

// Counters returns a copy of the current record's counter array.
func (r *Reader) Counters() [snapshot.MaxCounters]int64 {
	return r.cur.Counters
}

// Counter returns one counter of the current record.
func (r *Reader) Counter(c snapshot.Counter) int64 {
	return r.cur.Counter(c)
}

// Tags returns the current record's tags. The slice is only valid until the
// next call to LoadNext.
func (r *Reader) Tags() []snapshot.Tag {
	return r.cur.Tags
}

// Stack returns the current record's stack, or nil.
func (r *Reader) Stack() *snapshot.FrameList {
	return r.cur.Stack
}

// Snapshot returns a copy of the current record.
func (r *Reader) Snapshot() *snapshot.ThreadSnapshot {
	return r.cur.Clone()
}

// Records returns the number of records decoded so far.
func (r *Reader) Records() int64 {
	return r.consumed
}

// Next implements snapshot.Source.
func (r *Reader) Next() (*snapshot.ThreadSnapshot, error) {
	ok, err := r.LoadNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	return r.Snapshot(), nil
}
