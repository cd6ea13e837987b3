// Package baseline saves capture summaries and reports how a later capture
// drifted from them.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danpilch/threadscope/pkg/output"
)

// Baseline is a named capture summary kept for later comparison.
type Baseline struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Hostname  string            `json:"hostname"`
	Capture   string            `json:"capture,omitempty"`
	Summary   *output.Summary   `json:"summary"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DefaultDir returns the default baseline storage directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".threadscope/baselines"
	}
	return filepath.Join(home, ".threadscope", "baselines")
}

// Save writes a baseline to a JSON file.
func (b *Baseline) Save(dir string) error {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create baseline directory: %w", err)
	}

	path := filepath.Join(dir, b.Name+".json")
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal baseline: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write baseline: %w", err)
	}
	return nil
}

// Load reads a baseline from a JSON file.
func Load(name, dir string) (*Baseline, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read baseline %q: %w", name, err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("cannot parse baseline: %w", err)
	}
	if b.Summary == nil {
		return nil, fmt.Errorf("baseline %q has no summary", name)
	}
	return &b, nil
}

// Entry describes a saved baseline without its full summary.
type Entry struct {
	Name       string
	Capture    string
	Timestamp  time.Time
	Records    int64
	Threads    int
	BlockedPct float64
	// Err is set when the file could not be read as a baseline.
	Err error
}

// List describes every baseline saved in dir, sorted by name. Unreadable
// files are listed with Err set rather than failing the whole listing.
func List(dir string) ([]Entry, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list baselines: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(f.Name(), ".json")
		b, err := Load(name, dir)
		if err != nil {
			entries = append(entries, Entry{Name: name, Err: err})
			continue
		}
		e := Entry{
			Name:      name,
			Capture:   b.Capture,
			Timestamp: b.Timestamp,
			Records:   b.Summary.Records,
			Threads:   b.Summary.Threads,
		}
		if b.Summary.Records > 0 {
			e.BlockedPct = 100 * float64(b.Summary.Blocked()) / float64(b.Summary.Records)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// NewBaseline creates a baseline from the summary of capture.
func NewBaseline(name, capture string, s *output.Summary) *Baseline {
	hostname, _ := os.Hostname()
	return &Baseline{
		Name:      name,
		Timestamp: time.Now(),
		Hostname:  hostname,
		Capture:   capture,
		Summary:   s,
	}
}
