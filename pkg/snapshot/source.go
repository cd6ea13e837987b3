package snapshot

import (
	"io"
	"regexp"
)

// Source is a forward-only stream of snapshots. Next returns io.EOF once the
// stream is exhausted; any other error is a failure of the stream.
type Source interface {
	Next() (*ThreadSnapshot, error)
}

// SliceSource serves snapshots from memory.
type SliceSource struct {
	items []*ThreadSnapshot
}

// NewSliceSource returns a source over items.
func NewSliceSource(items []*ThreadSnapshot) *SliceSource {
	return &SliceSource{items: items}
}

// Next implements Source.
func (s *SliceSource) Next() (*ThreadSnapshot, error) {
	if len(s.items) == 0 {
		return nil, io.EOF
	}
	it := s.items[0]
	s.items = s.items[1:]
	return it, nil
}

// Predicate selects snapshots.
type Predicate func(*ThreadSnapshot) bool

type filtered struct {
	src  Source
	pred Predicate
}

// Filter returns a source yielding only the snapshots of src accepted by pred.
func Filter(src Source, pred Predicate) Source {
	if pred == nil {
		return src
	}
	return &filtered{src: src, pred: pred}
}

func (f *filtered) Next() (*ThreadSnapshot, error) {
	for {
		s, err := f.src.Next()
		if err != nil {
			return nil, err
		}
		if f.pred(s) {
			return s, nil
		}
	}
}

// ThreadNameMatches accepts snapshots whose thread name matches re.
func ThreadNameMatches(re *regexp.Regexp) Predicate {
	return func(s *ThreadSnapshot) bool {
		return s.HasName && re.MatchString(s.Name)
	}
}

// InTimeRange accepts snapshots with from <= Timestamp < to. A zero bound is
// open.
func InTimeRange(from, to int64) Predicate {
	return func(s *ThreadSnapshot) bool {
		if from != 0 && s.Timestamp < from {
			return false
		}
		if to != 0 && s.Timestamp >= to {
			return false
		}
		return true
	}
}

// InStates accepts snapshots in any of the given states.
func InStates(states ...ThreadState) Predicate {
	return func(s *ThreadSnapshot) bool {
		for _, st := range states {
			if s.State == st {
				return true
			}
		}
		return false
	}
}

// All accepts snapshots accepted by every predicate.
func All(preds ...Predicate) Predicate {
	return func(s *ThreadSnapshot) bool {
		for _, p := range preds {
			if p != nil && !p(s) {
				return false
			}
		}
		return true
	}
}
