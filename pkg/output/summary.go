package output

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/danpilch/threadscope/pkg/flamegraph"
	"github.com/danpilch/threadscope/pkg/snapshot"
)

// SummaryOptions bounds the lists of a Summary.
type SummaryOptions struct {
	TopFrames  int // <= 0 keeps every frame
	TopThreads int // <= 0 keeps every thread
}

// DefaultSummaryOptions returns the limits used by the stats command.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{TopFrames: 10, TopThreads: 20}
}

// StateCount is the number of records seen in one thread state.
type StateCount struct {
	State   string  `json:"state"`
	Records int64   `json:"records"`
	Percent float64 `json:"percent"`
}

// HotFrame is a frame and the samples that ended in it.
type HotFrame struct {
	Frame   string  `json:"frame"`
	Samples int64   `json:"samples"`
	Percent float64 `json:"percent"`
}

// ThreadSummary describes one thread of a capture.
type ThreadSummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Records int64  `json:"records"`
	Blocked int64  `json:"blocked"`
	// CPUTime is the CPU time observed between the first and last record,
	// in nanoseconds. -1 when no record carried the counter.
	CPUTime int64 `json:"cpu_time_ns"`
	// CPUSeries holds the CPU time spent between consecutive records.
	CPUSeries []int64 `json:"cpu_series_ns,omitempty"`
}

// Summary is an overview of a capture.
type Summary struct {
	Records        int64           `json:"records"`
	Threads        int             `json:"threads"`
	FirstTimestamp int64           `json:"first_timestamp_ms"`
	LastTimestamp  int64           `json:"last_timestamp_ms"`
	SpanMillis     int64           `json:"span_ms"`
	States         []StateCount    `json:"states"`
	HotFrames      []HotFrame      `json:"hot_frames"`
	PerThread      []ThreadSummary `json:"per_thread"`
}

// Blocked returns the number of records in the BLOCKED state.
func (s *Summary) Blocked() int64 {
	for _, st := range s.States {
		if st.State == snapshot.StateBlocked.String() {
			return st.Records
		}
	}
	return 0
}

// HasCPU reports whether any thread carried the CPU counter.
func (s *Summary) HasCPU() bool {
	for _, t := range s.PerThread {
		if t.CPUTime >= 0 {
			return true
		}
	}
	return false
}

// Summarize reads src to the end.
func Summarize(src snapshot.Source, opts SummaryOptions) (*Summary, error) {
	sum := &Summary{
		FirstTimestamp: snapshot.Absent,
		LastTimestamp:  snapshot.Absent,
	}
	tree := flamegraph.NewTree(nil)
	threads := make(map[int64]*ThreadSummary)
	lastCPU := make(map[int64]int64)
	var states [snapshot.StateTerminated + 1]int64

	for {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", sum.Records, err)
		}
		sum.Records++
		tree.Feed(s)

		if ts := s.Timestamp; ts != snapshot.Absent {
			if sum.FirstTimestamp == snapshot.Absent || ts < sum.FirstTimestamp {
				sum.FirstTimestamp = ts
			}
			if ts > sum.LastTimestamp {
				sum.LastTimestamp = ts
			}
		}
		if int(s.State) < len(states) {
			states[s.State]++
		}

		th, ok := threads[s.ThreadID]
		if !ok {
			th = &ThreadSummary{ID: s.ThreadID, CPUTime: snapshot.Absent}
			threads[s.ThreadID] = th
		}
		th.Records++
		if s.HasName {
			th.Name = s.Name
		}
		if s.State == snapshot.StateBlocked {
			th.Blocked++
		}
		if cpu := s.Counter(snapshot.CPUTime); cpu != snapshot.Absent {
			if th.CPUTime == snapshot.Absent {
				th.CPUTime = 0
			}
			if prev, seen := lastCPU[s.ThreadID]; seen && cpu >= prev {
				th.CPUSeries = append(th.CPUSeries, cpu-prev)
				th.CPUTime += cpu - prev
			}
			lastCPU[s.ThreadID] = cpu
		}
	}

	if sum.FirstTimestamp != snapshot.Absent {
		sum.SpanMillis = sum.LastTimestamp - sum.FirstTimestamp
	}
	sum.Threads = len(threads)

	for i, n := range states {
		if n == 0 {
			continue
		}
		name := snapshot.ThreadState(i).String()
		if name == "" {
			name = "UNSET"
		}
		sum.States = append(sum.States, StateCount{
			State:   name,
			Records: n,
			Percent: percent(n, sum.Records),
		})
	}

	total := tree.Root().Total
	for _, fw := range tree.HotFrames(opts.TopFrames) {
		sum.HotFrames = append(sum.HotFrames, HotFrame{
			Frame:   fw.Frame.Name(),
			Samples: fw.Weight,
			Percent: percent(fw.Weight, total),
		})
	}

	for _, th := range threads {
		sum.PerThread = append(sum.PerThread, *th)
	}
	sort.Slice(sum.PerThread, func(i, j int) bool {
		a, b := sum.PerThread[i], sum.PerThread[j]
		if a.CPUTime != b.CPUTime {
			return a.CPUTime > b.CPUTime
		}
		if a.Records != b.Records {
			return a.Records > b.Records
		}
		return a.ID < b.ID
	})
	if opts.TopThreads > 0 && len(sum.PerThread) > opts.TopThreads {
		sum.PerThread = sum.PerThread[:opts.TopThreads]
	}
	return sum, nil
}

func percent(n, of int64) float64 {
	if of == 0 {
		return 0
	}
	return 100 * float64(n) / float64(of)
}
