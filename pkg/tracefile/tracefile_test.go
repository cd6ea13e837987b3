package tracefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

func randomSnapshot(rng *rand.Rand) *snapshot.ThreadSnapshot {
	s := snapshot.NewThreadSnapshot()
	if rng.Intn(4) != 0 {
		s.Timestamp = rng.Int63()
	}
	s.ThreadID = int64(rng.Uint64())
	if rng.Intn(3) != 0 {
		s.SetName(fmt.Sprintf("worker-%d", rng.Intn(20)))
	}
	s.State = snapshot.ThreadState(rng.Intn(int(snapshot.StateTerminated) + 1))
	for i := 0; i < snapshot.MaxCounters; i++ {
		if rng.Intn(3) == 0 {
			s.Counters[i] = boundaryValues[rng.Intn(len(boundaryValues))]
		}
	}
	for i := rng.Intn(3); i > 0; i-- {
		s.SetTag(fmt.Sprintf("tag%d", rng.Intn(5)), int64(rng.Uint64()))
	}
	if rng.Intn(5) != 0 {
		depth := rng.Intn(40)
		frames := make([]snapshot.StackFrame, depth)
		for i := range frames {
			f := snapshot.StackFrame{
				Class:  fmt.Sprintf("com.example.pkg%d.Class%d", rng.Intn(8), rng.Intn(50)),
				Method: fmt.Sprintf("method%d", rng.Intn(30)),
				Line:   rng.Intn(2000) - 2,
			}
			if rng.Intn(4) != 0 {
				f.File = fmt.Sprintf("Class%d.java", rng.Intn(50))
			}
			frames[i] = f
		}
		s.Stack = snapshot.NewFrameList(frames...)
	}
	return s
}

func writeAll(t *testing.T, opts WriterOptions, events []*snapshot.ThreadSnapshot) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, int64(len(events)), w.Records())
	return buf.Bytes()
}

func readAll(t *testing.T, data []byte) []*snapshot.ThreadSnapshot {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var out []*snapshot.ThreadSnapshot
	for {
		ok, err := r.LoadNext()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.True(t, r.IsLoaded())
		out = append(out, r.Snapshot())
	}
	assert.False(t, r.IsLoaded())
	return out
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts WriterOptions
	}{
		{"default", DefaultWriterOptions()},
		{"tiny dictionary", WriterOptions{DictionaryCapacity: 2}},
		{"single slot dictionary", WriterOptions{DictionaryCapacity: 1}},
		{"snappy", WriterOptions{DictionaryCapacity: 64, Compression: CompressionSnappy}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			events := make([]*snapshot.ThreadSnapshot, 500)
			for i := range events {
				events[i] = randomSnapshot(rng)
			}

			got := readAll(t, writeAll(t, tc.opts, events))
			require.Len(t, got, len(events))
			for i := range events {
				if !events[i].Equal(got[i]) {
					t.Fatalf("record %d differs:\nwant %+v\ngot  %+v", i, events[i], got[i])
				}
			}
		})
	}
}

func TestRoundTripAccessors(t *testing.T) {
	s := snapshot.NewThreadSnapshot()
	s.Timestamp = 1_700_000_000_000
	s.ThreadID = math.MinInt64
	s.SetName("main")
	s.State = snapshot.StateTimedWaiting
	s.SetCounter(snapshot.CPUTime, math.MaxInt64)
	s.SetCounter(snapshot.AllocatedBytes, 0)
	s.SetCounter(31, -2)
	s.SetTag("gc", -7)
	s.Stack = snapshot.NewFrameList(
		snapshot.StackFrame{Class: "java.lang.Thread", Method: "sleep", Line: snapshot.LineNative},
		snapshot.StackFrame{Class: "com.example.Main", Method: "main", File: "Main.java", Line: 10},
	)

	r, err := NewReader(bytes.NewReader(writeAll(t, DefaultWriterOptions(), []*snapshot.ThreadSnapshot{s})))
	require.NoError(t, err)
	ok, err := r.LoadNext()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(math.MinInt64), r.ThreadID())
	name, hasName := r.ThreadName()
	assert.True(t, hasName)
	assert.Equal(t, "main", name)
	assert.Equal(t, int64(1_700_000_000_000), r.Timestamp())
	assert.Equal(t, snapshot.StateTimedWaiting, r.State())
	assert.Equal(t, int64(math.MaxInt64), r.Counter(snapshot.CPUTime))
	assert.Equal(t, int64(0), r.Counter(snapshot.AllocatedBytes))
	assert.Equal(t, int64(-1), r.Counter(snapshot.UserTime))
	counters := r.Counters()
	assert.Equal(t, int64(-2), counters[31])
	assert.Equal(t, []snapshot.Tag{{Name: "gc", Value: -7}}, r.Tags())
	assert.True(t, s.Stack.Equal(r.Stack()))

	ok, err = r.LoadNext()
	assert.NoError(t, err)
	assert.False(t, ok)
	// stays at end
	ok, err = r.LoadNext()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyInput(t *testing.T) {
	r, err := NewReader(bytes.NewReader(nil))
	require.NoError(t, err)
	ok, err := r.LoadNext()
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestHeaderOnly(t *testing.T) {
	got := readAll(t, writeAll(t, DefaultWriterOptions(), nil))
	assert.Empty(t, got)
}

func TestBadHeader(t *testing.T) {
	for _, in := range []string{"TSC", "XXXX\x01\x00\x10", "TSCP\x02\x00\x10", "TSCP\x01\x04\x10", "TSCP\x01\x00\x00", "TSCP\x01"} {
		_, err := NewReader(bytes.NewReader([]byte(in)))
		assert.True(t, errors.Is(err, ErrCorrupt), "input %q: %v", in, err)
	}
}

// Cutting the stream anywhere must either end cleanly on a record boundary
// or report corruption; it must never hand out a partial record.
func TestTruncation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriterOptions{DictionaryCapacity: 8})
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	headerLen := buf.Len()
	boundaries := map[int]int{headerLen: 0}
	for i := 1; i <= 20; i++ {
		require.NoError(t, w.Write(randomSnapshot(rng)))
		require.NoError(t, w.Flush())
		boundaries[buf.Len()] = i
	}
	require.NoError(t, w.Close())
	data := buf.Bytes()

	for cut := headerLen; cut <= len(data); cut++ {
		r, err := NewReader(bytes.NewReader(data[:cut]))
		require.NoError(t, err)
		var n int
		var readErr error
		for {
			ok, err := r.LoadNext()
			if err != nil {
				readErr = err
				break
			}
			if !ok {
				break
			}
			n++
		}
		if want, ok := boundaries[cut]; ok {
			assert.NoError(t, readErr, "cut at %d", cut)
			assert.Equal(t, want, n, "cut at %d", cut)
		} else {
			assert.True(t, errors.Is(readErr, ErrCorrupt), "cut at %d: %v", cut, readErr)
		}
	}
}

func TestCorruptRecords(t *testing.T) {
	hdr := []byte(magic)
	hdr = AppendUvarint(hdr, formatVersion)
	hdr = AppendUvarint(hdr, 0)
	hdr = AppendUvarint(hdr, 4)

	record := func(payload []byte) []byte {
		b := append([]byte(nil), hdr...)
		b = append(b, kindEvent)
		b = AppendUvarint(b, uint64(len(payload)))
		return append(b, payload...)
	}
	minimal := func() []byte {
		var p []byte
		p = AppendUvarint(p, 0)    // fields
		p = AppendVarint(p, -1)    // timestamp
		p = AppendVarint(p, 1)     // thread id
		p = AppendUvarint(p, 0)    // counters
		return AppendUvarint(p, 0) // tags
	}

	tests := map[string][]byte{
		"unknown kind":       append(append([]byte(nil), hdr...), 0x7f, 0x00),
		"length past eof":    append(append(append([]byte(nil), hdr...), kindEvent), AppendUvarint(nil, 1000)...),
		"trailing bytes":     record(append(minimal(), 0x00)),
		"undefined symbol":   record(AppendVarint(AppendVarint(AppendVarint(AppendUvarint(nil, fieldName), -1), 1), 3)),
		"symbol beyond dict": record(AppendVarint(AppendVarint(AppendVarint(AppendUvarint(nil, fieldName), -1), 1), ^int64(4))),
		"bad counter slot":   record(AppendUvarint(AppendUvarint(AppendVarint(AppendVarint(AppendUvarint(nil, 0), -1), 1), 1), 40)),
		"bad state":          record(append(AppendVarint(AppendVarint(AppendUvarint(nil, fieldState), -1), 1), 0)),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			ok, err := r.LoadNext()
			assert.False(t, ok)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
			// the error sticks
			_, err2 := r.LoadNext()
			assert.Equal(t, err, err2)
		})
	}

	r, err := NewReader(bytes.NewReader(record(minimal())))
	require.NoError(t, err)
	ok, err := r.LoadNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), r.ThreadID())
}

func TestDeterministicOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	events := make([]*snapshot.ThreadSnapshot, 100)
	for i := range events {
		events[i] = randomSnapshot(rng)
	}
	opts := WriterOptions{DictionaryCapacity: 16, Compression: CompressionSnappy}
	assert.Equal(t, writeAll(t, opts, events), writeAll(t, opts, events))
}

func TestDictionaryChurnWithinRecord(t *testing.T) {
	// More distinct symbols in one record than the dictionary holds, so ids
	// are reassigned between definition and later references.
	frames := make([]snapshot.StackFrame, 10)
	for i := range frames {
		frames[i] = snapshot.StackFrame{Class: fmt.Sprintf("C%d", i), Method: fmt.Sprintf("m%d", i%3), File: "F.java", Line: i}
	}
	s := snapshot.NewThreadSnapshot()
	s.Stack = snapshot.NewFrameList(frames...)
	events := []*snapshot.ThreadSnapshot{s, s.Clone(), s.Clone()}

	got := readAll(t, writeAll(t, WriterOptions{DictionaryCapacity: 3}, events))
	require.Len(t, got, 3)
	for _, g := range got {
		assert.True(t, s.Stack.Equal(g.Stack))
	}
}

func TestSmallDictionaryIsSmallerThanRaw(t *testing.T) {
	s := snapshot.NewThreadSnapshot()
	s.SetName("a-rather-long-thread-name-that-repeats")
	s.Stack = snapshot.NewFrameList(snapshot.StackFrame{Class: "org.example.very.long.package.Name", Method: "run", Line: 1})
	one := writeAll(t, DefaultWriterOptions(), []*snapshot.ThreadSnapshot{s})
	hundred := writeAll(t, DefaultWriterOptions(), repeat(s, 100))
	// after the first record, references cost a byte or two per symbol
	assert.Less(t, len(hundred), len(one)*10)
}

func repeat(s *snapshot.ThreadSnapshot, n int) []*snapshot.ThreadSnapshot {
	out := make([]*snapshot.ThreadSnapshot, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestWriteAfterClose(t *testing.T) {
	w, err := NewWriter(io.Discard, DefaultWriterOptions())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Write(snapshot.NewThreadSnapshot()))
}

func TestNextImplementsSource(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	events := []*snapshot.ThreadSnapshot{randomSnapshot(rng), randomSnapshot(rng)}
	r, err := NewReader(bytes.NewReader(writeAll(t, DefaultWriterOptions(), events)))
	require.NoError(t, err)

	var src snapshot.Source = r
	for i := range events {
		got, err := src.Next()
		require.NoError(t, err)
		assert.True(t, events[i].Equal(got))
	}
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOversizedRecordStopsWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, DefaultWriterOptions())
	require.NoError(t, err)

	first := snapshot.NewThreadSnapshot()
	first.ThreadID = 1
	first.SetName("main")
	require.NoError(t, w.Write(first))

	huge := snapshot.NewThreadSnapshot()
	huge.ThreadID = 2
	huge.SetName("worker")
	huge.SetTag(string(bytes.Repeat([]byte{'x'}, maxRecordSize+1)), 1)
	require.Error(t, w.Write(huge))

	// "worker" is already interned, so a later record would reference a
	// definition that never reached the stream.
	next := snapshot.NewThreadSnapshot()
	next.ThreadID = 2
	next.SetName("worker")
	assert.Error(t, w.Write(next))
	assert.Equal(t, int64(1), w.Records())

	require.NoError(t, w.Close())
	got := readAll(t, buf.Bytes())
	require.Len(t, got, 1)
	assert.True(t, first.Equal(got[0]))
}

func TestWriteRejectsUnknownState(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, DefaultWriterOptions())
	require.NoError(t, err)

	bad := snapshot.NewThreadSnapshot()
	bad.ThreadID = 1
	bad.State = snapshot.StateTerminated + 1
	assert.Error(t, w.Write(bad))

	good := snapshot.NewThreadSnapshot()
	good.ThreadID = 1
	good.State = snapshot.StateTerminated
	require.NoError(t, w.Write(good))
	require.NoError(t, w.Close())

	got := readAll(t, buf.Bytes())
	require.Len(t, got, 1)
	assert.Equal(t, snapshot.StateTerminated, got[0].State)
}
