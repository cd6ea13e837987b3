package debug

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/threadscope/pkg/sampler"
	"github.com/danpilch/threadscope/pkg/snapshot"
)

var (
	debugTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	debugHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	debugDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// CollectorTiming accumulates the durations of a collector's Collect calls.
type CollectorTiming struct {
	Name   string
	Calls  int
	Errors int
	Total  time.Duration
	Max    time.Duration
}

// Mean returns the average call duration.
func (t CollectorTiming) Mean() time.Duration {
	if t.Calls == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Calls)
}

// TimedCollector wraps a sampler.CounterCollector to record how long each
// collection takes.
type TimedCollector struct {
	inner sampler.CounterCollector

	mu     sync.Mutex
	timing CollectorTiming
}

// NewTimedCollector wraps a collector with timing instrumentation.
func NewTimedCollector(c sampler.CounterCollector) *TimedCollector {
	return &TimedCollector{
		inner:  c,
		timing: CollectorTiming{Name: c.Name()},
	}
}

// WrapAll wraps every collector in cs.
func WrapAll(cs []sampler.CounterCollector) ([]sampler.CounterCollector, []*TimedCollector) {
	wrapped := make([]sampler.CounterCollector, len(cs))
	timed := make([]*TimedCollector, len(cs))
	for i, c := range cs {
		timed[i] = NewTimedCollector(c)
		wrapped[i] = timed[i]
	}
	return wrapped, timed
}

// Name returns the wrapped collector's name.
func (t *TimedCollector) Name() string {
	return t.inner.Name()
}

// Counter returns the wrapped collector's counter slot.
func (t *TimedCollector) Counter() snapshot.Counter {
	return t.inner.Counter()
}

// Collect runs the wrapped collector and records duration.
func (t *TimedCollector) Collect(ctx context.Context, threads []sampler.ThreadInfo) (map[int64]int64, error) {
	start := time.Now()
	values, err := t.inner.Collect(ctx, threads)
	d := time.Since(start)

	t.mu.Lock()
	t.timing.Calls++
	t.timing.Total += d
	if d > t.timing.Max {
		t.timing.Max = d
	}
	if err != nil {
		t.timing.Errors++
	}
	t.mu.Unlock()
	return values, err
}

// Timing returns a copy of the accumulated timing.
func (t *TimedCollector) Timing() CollectorTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timing
}

// Timings collects the timing of every collector in ts.
func Timings(ts []*TimedCollector) []CollectorTiming {
	out := make([]CollectorTiming, len(ts))
	for i, t := range ts {
		out[i] = t.Timing()
	}
	return out
}

// TimingReport prints a styled timing summary for all timed collectors.
func TimingReport(w io.Writer, timings []CollectorTiming) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Collector Timing Report"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 64)))
	fmt.Fprintf(w, "  %s  %s  %s  %s\n",
		debugHeader.Render("COLLECTOR          "),
		debugHeader.Render("CALLS "),
		debugHeader.Render("MEAN        "),
		debugHeader.Render("MAX         "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 64)))

	var total time.Duration
	var calls int
	for _, t := range timings {
		name := t.Name
		if t.Errors > 0 {
			name = fmt.Sprintf("%s (%d err)", t.Name, t.Errors)
		}
		fmt.Fprintf(w, "  %-20s %7d  %-13v %v\n", name, t.Calls, t.Mean(), t.Max)
		total += t.Total
		calls += t.Calls
	}
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 64)))
	fmt.Fprintf(w, "  %-20s %7d  %v\n",
		lipgloss.NewStyle().Bold(true).Render("TOTAL"), calls, total)
}
