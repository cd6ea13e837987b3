package output

import (
	"strings"
	"sync"
)

// SparklineTracker keeps a rolling window of values per key for sparkline
// rendering.
type SparklineTracker struct {
	mu     sync.Mutex
	data   map[string][]float64
	maxLen int
}

// NewSparklineTracker creates a tracker with a fixed window size.
func NewSparklineTracker(maxLen int) *SparklineTracker {
	if maxLen < 1 {
		maxLen = 20
	}
	return &SparklineTracker{
		data:   make(map[string][]float64),
		maxLen: maxLen,
	}
}

// Record adds a new value for a key, dropping the oldest once the window
// is full.
func (s *SparklineTracker) Record(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals := append(s.data[key], value)
	if len(vals) > s.maxLen {
		vals = vals[len(vals)-s.maxLen:]
	}
	s.data[key] = vals
}

// Sparkline returns a Unicode sparkline string for a key.
func (s *SparklineTracker) Sparkline(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderSparkline(s.data[key])
}

// sparkline block characters from lowest to highest
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

func renderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	rng := hi - lo
	top := len(sparkBlocks) - 1
	for _, v := range values {
		idx := 0
		if rng > 0 {
			idx = int((v - lo) / rng * float64(top))
		}
		b.WriteRune(sparkBlocks[max(0, min(idx, top))])
	}
	return b.String()
}
