// Package benchmark measures the capture codec on real data: encode and
// decode latency and the size each writer configuration produces.
package benchmark

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

// Options configures a benchmark run.
type Options struct {
	Iterations int
	Warmup     int
}

// DefaultOptions returns sensible benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Iterations: 20,
		Warmup:     3,
	}
}

// Config is one writer configuration under test.
type Config struct {
	Name    string
	Options tracefile.WriterOptions
}

// DefaultConfigs covers a small and the default dictionary, with and
// without compression.
func DefaultConfigs() []Config {
	var out []Config
	for _, dict := range []int{64, tracefile.DefaultWriterOptions().DictionaryCapacity} {
		for _, c := range []tracefile.Compression{tracefile.CompressionNone, tracefile.CompressionSnappy} {
			name := fmt.Sprintf("dict=%d", dict)
			if c == tracefile.CompressionSnappy {
				name += "+snappy"
			}
			out = append(out, Config{Name: name, Options: tracefile.WriterOptions{DictionaryCapacity: dict, Compression: c}})
		}
	}
	return out
}

// Result holds benchmark results for a single configuration.
type Result struct {
	Config    string
	Records   int
	Bytes     int
	Encode    []time.Duration
	Decode    []time.Duration
	EncodeP50 time.Duration
	EncodeP95 time.Duration
	DecodeP50 time.Duration
	DecodeP95 time.Duration
}

// BytesPerRecord returns the mean encoded record size.
func (r Result) BytesPerRecord() float64 {
	if r.Records == 0 {
		return 0
	}
	return float64(r.Bytes) / float64(r.Records)
}

// Overhead holds the tool's own resource usage.
type Overhead struct {
	CPUTime    time.Duration
	AllocBytes uint64
	AllocCount uint64
	GCPauses   uint32
}

var (
	bmTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bmHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	bmDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func encode(records []*snapshot.ThreadSnapshot, opts tracefile.WriterOptions) ([]byte, error) {
	var buf bytes.Buffer
	w, err := tracefile.NewWriter(&buf, opts)
	if err != nil {
		return nil, err
	}
	for _, s := range records {
		if err := w.Write(s); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (int, error) {
	r, err := tracefile.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	var n int
	for {
		ok, err := r.LoadNext()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// Run encodes and decodes records with every configuration.
func Run(records []*snapshot.ThreadSnapshot, configs []Config, opts Options) ([]Result, error) {
	if opts.Iterations < 1 {
		return nil, errors.New("benchmark needs at least one iteration")
	}
	var results []Result

	for _, cfg := range configs {
		// Warmup
		for i := 0; i < opts.Warmup; i++ {
			if _, err := encode(records, cfg.Options); err != nil {
				return nil, fmt.Errorf("%s: %w", cfg.Name, err)
			}
		}

		res := Result{
			Config: cfg.Name,
			Encode: make([]time.Duration, opts.Iterations),
			Decode: make([]time.Duration, opts.Iterations),
		}
		for i := 0; i < opts.Iterations; i++ {
			start := time.Now()
			data, err := encode(records, cfg.Options)
			res.Encode[i] = time.Since(start)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", cfg.Name, err)
			}

			start = time.Now()
			n, err := decode(data)
			res.Decode[i] = time.Since(start)
			if err != nil {
				return nil, fmt.Errorf("%s: decode: %w", cfg.Name, err)
			}
			if n != len(records) {
				return nil, fmt.Errorf("%s: decoded %d of %d records", cfg.Name, n, len(records))
			}
			res.Records, res.Bytes = n, len(data)
		}

		// Sort latencies for percentile calculation
		sortDurations(res.Encode)
		sortDurations(res.Decode)
		res.EncodeP50 = percentile(res.Encode, 0.50)
		res.EncodeP95 = percentile(res.Encode, 0.95)
		res.DecodeP50 = percentile(res.Decode, 0.50)
		res.DecodeP95 = percentile(res.Decode, 0.95)
		results = append(results, res)
	}

	return results, nil
}

func sortDurations(d []time.Duration) {
	sort.Slice(d, func(i, j int) bool {
		return d[i] < d[j]
	})
}

// MeasureOverhead returns the tool's CPU and memory overhead.
func MeasureOverhead() Overhead {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Overhead{
		CPUTime:    processCPUTime(),
		AllocBytes: m.TotalAlloc,
		AllocCount: m.Mallocs,
		GCPauses:   m.NumGC,
	}
}

// RenderResults outputs styled benchmark results.
func RenderResults(w io.Writer, results []Result, overhead Overhead) {
	fmt.Fprintln(w, bmTitle.Render("Codec Benchmark Results"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("═", 90)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s %s %s %s\n",
		bmHeader.Render("CONFIG             "),
		bmHeader.Render("SIZE      "),
		bmHeader.Render("B/REC  "),
		bmHeader.Render("ENC P50    "),
		bmHeader.Render("ENC P95    "),
		bmHeader.Render("DEC P50    "))
	fmt.Fprintln(w, "  "+bmDim.Render(strings.Repeat("─", 90)))

	for _, r := range results {
		fmt.Fprintf(w, "  %-20s %-11s %-8.1f %-12v %-12v %v\n",
			r.Config, formatBytes(uint64(r.Bytes)), r.BytesPerRecord(), r.EncodeP50, r.EncodeP95, r.DecodeP50)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bmTitle.Render("Tool Overhead"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  CPU time:         %s\n", lipgloss.NewStyle().Bold(true).Render(overhead.CPUTime.Round(time.Millisecond).String()))
	fmt.Fprintf(w, "  Memory allocated: %s\n", lipgloss.NewStyle().Bold(true).Render(formatBytes(overhead.AllocBytes)))
	fmt.Fprintf(w, "  Allocations:      %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.AllocCount)))
	fmt.Fprintf(w, "  GC pauses:        %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.GCPauses)))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
