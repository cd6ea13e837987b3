package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// ErrUnsupported is returned by collectors that cannot run on this platform.
var ErrUnsupported = errors.New("sampler: collector not supported on this platform")

// CounterCollector reads one counter for the threads of a dump.
type CounterCollector interface {
	// Name returns the collector name (e.g., "cpu", "user").
	Name() string

	// Counter returns the snapshot slot the values go to.
	Counter() snapshot.Counter

	// Collect returns a value per thread id. Threads it could not read are
	// left out and keep the absent sentinel.
	Collect(ctx context.Context, threads []ThreadInfo) (map[int64]int64, error)
}

// Registry holds all registered collectors.
type Registry struct {
	collectors []CounterCollector
}

// NewRegistry creates a new collector registry.
func NewRegistry() *Registry {
	return &Registry{
		collectors: make([]CounterCollector, 0),
	}
}

// DefaultRegistry returns a registry with the built-in collectors for the
// process pid.
func DefaultRegistry(pid int) *Registry {
	r := NewRegistry()
	r.Register(NewProcCPUCollector(pid))
	r.Register(NewProcUserCollector(pid))
	return r
}

// Register adds a collector to the registry.
func (r *Registry) Register(c CounterCollector) {
	r.collectors = append(r.collectors, c)
}

// Collectors returns all registered collectors.
func (r *Registry) Collectors() []CounterCollector {
	return r.collectors
}

// GetByName returns a collector by name, or nil if not found.
func (r *Registry) GetByName(name string) CounterCollector {
	for _, c := range r.collectors {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Select resolves a comma separated list of collector names.
func (r *Registry) Select(names string) ([]CounterCollector, error) {
	var out []CounterCollector
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c := r.GetByName(name)
		if c == nil {
			return nil, fmt.Errorf("unknown collector %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}
