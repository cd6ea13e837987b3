package flamegraph

import (
	"fmt"
	"strings"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// WeightCalculator maps an event to its contribution to the tree. Zero and
// negative weights are ignored.
type WeightCalculator interface {
	Weight(s *snapshot.ThreadSnapshot) int64
}

// SampleWeight weighs every event as one sample.
type SampleWeight struct{}

func (SampleWeight) Weight(*snapshot.ThreadSnapshot) int64 { return 1 }

// CounterWeight weighs an event by the value of one of its counters. An
// absent counter weighs nothing.
type CounterWeight struct {
	Counter snapshot.Counter
}

func (c CounterWeight) Weight(s *snapshot.ThreadSnapshot) int64 {
	if v := s.Counter(c.Counter); v > 0 {
		return v
	}
	return 0
}

type counterDelta struct {
	counter snapshot.Counter
	last    map[int64]int64
}

// CounterDelta weighs an event by how much a cumulative per-thread counter
// grew since the same thread's previous event. A thread's first event only
// records the baseline. A counter that goes backwards restarts the baseline.
func CounterDelta(c snapshot.Counter) WeightCalculator {
	return &counterDelta{counter: c, last: make(map[int64]int64)}
}

func (d *counterDelta) Weight(s *snapshot.ThreadSnapshot) int64 {
	v := s.Counter(d.counter)
	if v == snapshot.Absent {
		return 0
	}
	prev, seen := d.last[s.ThreadID]
	d.last[s.ThreadID] = v
	if !seen || v < prev {
		return 0
	}
	return v - prev
}

// ParseWeight returns the calculator named by s: "samples", a counter name
// for its delta (cpu, user, alloc, ...) or "<counter>-value" for the raw
// counter value.
func ParseWeight(s string) (WeightCalculator, error) {
	if s == "" || s == "samples" {
		return SampleWeight{}, nil
	}
	if c, ok := snapshot.ParseCounter(s); ok {
		return CounterDelta(c), nil
	}
	if name, ok := strings.CutSuffix(s, "-value"); ok {
		if c, ok := snapshot.ParseCounter(name); ok {
			return CounterWeight{Counter: c}, nil
		}
	}
	return nil, fmt.Errorf("unknown weight %q", s)
}
