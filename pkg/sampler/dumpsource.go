package sampler

import (
	"context"
	"io"

	"github.com/danpilch/threadscope/pkg/threaddump"
)

// DumpSource replays parsed text dumps, one dump per Dump call.
type DumpSource struct {
	dumps []*threaddump.Dump
}

// NewDumpSource returns a source over the valid dumps in order. Invalid
// dumps are skipped.
func NewDumpSource(dumps ...*threaddump.Dump) *DumpSource {
	src := &DumpSource{}
	for _, d := range dumps {
		if d != nil && d.IsValid() {
			src.dumps = append(src.dumps, d)
		}
	}
	return src
}

// Remaining returns the number of dumps not yet replayed.
func (s *DumpSource) Remaining() int {
	return len(s.dumps)
}

// Threads lists the threads of the next dump without consuming it.
func (s *DumpSource) Threads(ctx context.Context) ([]ThreadRef, error) {
	if len(s.dumps) == 0 {
		return nil, io.EOF
	}
	threads := s.dumps[0].Threads
	refs := make([]ThreadRef, len(threads))
	for i, t := range threads {
		refs[i] = ThreadRef{ID: t.ThreadID, Name: t.Name}
	}
	return refs, nil
}

// Dump consumes the next dump.
func (s *DumpSource) Dump(ctx context.Context, ids []int64) ([]ThreadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.dumps) == 0 {
		return nil, io.EOF
	}
	d := s.dumps[0]
	s.dumps = s.dumps[1:]

	want := wanted(ids)
	out := make([]ThreadInfo, 0, len(d.Threads))
	for _, t := range d.Threads {
		if want != nil && !want[t.ThreadID] {
			continue
		}
		out = append(out, ThreadInfo{
			ID:        t.ThreadID,
			NativeID:  t.NativeID,
			Name:      t.Name,
			State:     t.State,
			Frames:    t.Stack.Frames(),
			Timestamp: t.Timestamp,
		})
	}
	return out, nil
}
