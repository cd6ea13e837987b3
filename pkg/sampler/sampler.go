// Package sampler drives a capture loop: on every tick it dumps the target
// threads, reads counters for them and writes one snapshot per thread.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// Options configures a Sampler.
type Options struct {
	// ThreadFilter is a regular expression on thread names; empty keeps
	// every thread.
	ThreadFilter string
	Collectors   []CounterCollector
	Interval     time.Duration
	// Ticks bounds Run; 0 runs until the context ends or the source is
	// exhausted.
	Ticks int
	Clock func() time.Time
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Interval: time.Second,
		Clock:    time.Now,
	}
}

// Sampler drives one capture. Its methods must not be called concurrently;
// run one per monitored process.
type Sampler struct {
	src    ThreadSource
	w      Writer
	opts   Options
	filter *regexp.Regexp
	logger *logrus.Logger

	primed bool
	ids    []int64
	snap   snapshot.ThreadSnapshot
	ticks  int
	total  int64
}

// New creates a sampler reading from src and writing to w.
func New(src ThreadSource, w Writer, opts Options, logger *logrus.Logger) (*Sampler, error) {
	if src == nil || w == nil {
		return nil, errors.New("sampler needs a thread source and a writer")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Sampler{src: src, w: w, opts: opts, logger: logger}
	if opts.ThreadFilter != "" {
		re, err := regexp.Compile(opts.ThreadFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid thread filter: %w", err)
		}
		s.filter = re
	}
	return s, nil
}

// Prime enumerates the threads once and fixes the sampled set to those
// matching the filter. Later ticks only dump that set.
func (s *Sampler) Prime(ctx context.Context) error {
	refs, err := s.src.Threads(ctx)
	if err != nil {
		return fmt.Errorf("cannot enumerate threads: %w", err)
	}
	s.ids = s.matching(refs)
	s.primed = true
	s.logger.WithFields(logrus.Fields{
		"threads": len(refs),
		"matched": len(s.ids),
	}).Debug("Primed thread set")
	return nil
}

func (s *Sampler) matching(refs []ThreadRef) []int64 {
	ids := make([]int64, 0, len(refs))
	for _, r := range refs {
		if s.filter == nil || s.filter.MatchString(r.Name) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// targets returns the ids to dump this tick, nil meaning all.
func (s *Sampler) targets(ctx context.Context) ([]int64, error) {
	if s.primed {
		return s.ids, nil
	}
	if s.filter == nil {
		return nil, nil
	}
	refs, err := s.src.Threads(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate threads: %w", err)
	}
	return s.matching(refs), nil
}

// Sample runs one tick and returns the number of snapshots written. A
// collector failure only leaves its counter absent. io.EOF from the source
// is returned as is.
func (s *Sampler) Sample(ctx context.Context) (int, error) {
	ids, err := s.targets(ctx)
	if err != nil {
		return 0, err
	}
	if ids != nil && len(ids) == 0 {
		return 0, nil
	}

	threads, err := s.src.Dump(ctx, ids)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("cannot dump threads: %w", err)
	}
	if s.filter != nil {
		// names can change between enumeration and dump
		kept := threads[:0:0]
		for _, t := range threads {
			if s.filter.MatchString(t.Name) {
				kept = append(kept, t)
			}
		}
		threads = kept
	}

	counters := s.collect(ctx, threads)

	now := s.opts.Clock().UnixMilli()
	var written int
	for i := range threads {
		t := &threads[i]
		s.snap.Reset()
		s.snap.Timestamp = now
		if t.Timestamp > 0 {
			s.snap.Timestamp = t.Timestamp
		}
		s.snap.ThreadID = t.ID
		s.snap.SetName(t.Name)
		s.snap.State = t.State
		for c, values := range counters {
			if v, ok := values[t.ID]; ok {
				s.snap.SetCounter(c, v)
			}
		}
		s.snap.Stack = snapshot.NewFrameList(t.Frames...)
		if err := s.w.Write(&s.snap); err != nil {
			return written, fmt.Errorf("cannot write snapshot of thread %d: %w", t.ID, err)
		}
		written++
	}
	s.ticks++
	s.total += int64(written)
	s.logger.WithFields(logrus.Fields{
		"tick":    s.ticks,
		"threads": written,
	}).Debug("Sampled")
	return written, nil
}

// collect runs the collectors concurrently. Each collector owns one
// counter slot.
func (s *Sampler) collect(ctx context.Context, threads []ThreadInfo) map[snapshot.Counter]map[int64]int64 {
	var (
		out = make(map[snapshot.Counter]map[int64]int64, len(s.opts.Collectors))
		mu  sync.Mutex
		wg  sync.WaitGroup
	)

	for _, collector := range s.opts.Collectors {
		wg.Add(1)
		go func(c CounterCollector) {
			defer wg.Done()

			values, err := c.Collect(ctx, threads)
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"collector": c.Name(),
					"error":     err,
				}).Warn("Collector failed")
				return
			}

			mu.Lock()
			out[c.Counter()] = values
			mu.Unlock()
		}(collector)
	}

	wg.Wait()
	return out
}

// Run samples every Interval until the context ends, the source is
// exhausted or Ticks ticks have run. The first tick runs immediately.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for n := 0; s.opts.Ticks == 0 || n < s.opts.Ticks; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.Sample(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.WithField("records", s.total).Info("Thread source exhausted")
				return nil
			}
			return err
		}
	}
	return nil
}

// Ticks returns the number of completed ticks.
func (s *Sampler) Ticks() int {
	return s.ticks
}

// Written returns the number of snapshots written so far.
func (s *Sampler) Written() int64 {
	return s.total
}
