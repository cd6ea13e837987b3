package sampler

import (
	"context"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// ThreadRef identifies a live thread cheaply, without its stack.
type ThreadRef struct {
	ID   int64
	Name string
}

// ThreadInfo is one thread of a point-in-time dump.
type ThreadInfo struct {
	ID       int64
	NativeID int64 // OS thread id, 0 if unknown
	Name     string
	State    snapshot.ThreadState
	// Frames are ordered innermost first.
	Frames []snapshot.StackFrame
	// Timestamp in milliseconds when the source knows better than the
	// sampler's clock, 0 otherwise.
	Timestamp int64
}

// ThreadSource supplies thread information from the process being sampled.
type ThreadSource interface {
	// Threads enumerates the live threads.
	Threads(ctx context.Context) ([]ThreadRef, error)
	// Dump returns the named threads, or all of them when ids is nil. Ids
	// that no longer exist are skipped. It returns io.EOF once the source
	// has nothing more to offer.
	Dump(ctx context.Context, ids []int64) ([]ThreadInfo, error)
}

// Writer consumes the snapshots of a tick. The snapshot passed to Write is
// reused by the next call and must not be retained.
type Writer interface {
	Write(s *snapshot.ThreadSnapshot) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(s *snapshot.ThreadSnapshot) error

func (f WriterFunc) Write(s *snapshot.ThreadSnapshot) error { return f(s) }

func wanted(ids []int64) map[int64]bool {
	if ids == nil {
		return nil
	}
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
