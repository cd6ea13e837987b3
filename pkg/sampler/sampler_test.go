package sampler

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/threaddump"
)

type fakeSource struct {
	threads     []ThreadInfo
	enumerated  int
	dumped      [][]int64
	ticksBefore int // Dump returns io.EOF after this many calls, 0 = never
	dumpErr     error
}

func (f *fakeSource) Threads(ctx context.Context) ([]ThreadRef, error) {
	f.enumerated++
	refs := make([]ThreadRef, len(f.threads))
	for i, t := range f.threads {
		refs[i] = ThreadRef{ID: t.ID, Name: t.Name}
	}
	return refs, nil
}

func (f *fakeSource) Dump(ctx context.Context, ids []int64) ([]ThreadInfo, error) {
	if f.dumpErr != nil {
		return nil, f.dumpErr
	}
	if f.ticksBefore > 0 && len(f.dumped) == f.ticksBefore {
		return nil, io.EOF
	}
	f.dumped = append(f.dumped, ids)
	want := wanted(ids)
	var out []ThreadInfo
	for _, t := range f.threads {
		if want == nil || want[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeCollector struct {
	name    string
	counter snapshot.Counter
	values  map[int64]int64
	err     error
}

func (c *fakeCollector) Name() string              { return c.name }
func (c *fakeCollector) Counter() snapshot.Counter { return c.counter }
func (c *fakeCollector) Collect(ctx context.Context, threads []ThreadInfo) (map[int64]int64, error) {
	return c.values, c.err
}

type recorder struct {
	got []*snapshot.ThreadSnapshot
}

func (r *recorder) Write(s *snapshot.ThreadSnapshot) error {
	r.got = append(r.got, s.Clone())
	return nil
}

func threads() []ThreadInfo {
	sleep := snapshot.StackFrame{Class: "java.lang.Thread", Method: "sleep", Line: snapshot.LineNative}
	run := snapshot.StackFrame{Class: "a.Worker", Method: "run", File: "Worker.java", Line: 7}
	return []ThreadInfo{
		{ID: 1, NativeID: 101, Name: "main", State: snapshot.StateRunnable, Frames: []snapshot.StackFrame{run}},
		{ID: 2, NativeID: 102, Name: "worker-1", State: snapshot.StateTimedWaiting, Frames: []snapshot.StackFrame{sleep, run}},
		{ID: 3, NativeID: 103, Name: "worker-2", State: snapshot.StateWaiting},
	}
}

func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

func TestSampleWritesEveryThread(t *testing.T) {
	src := &fakeSource{threads: threads()}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.Clock = fixedClock
	opts.Collectors = []CounterCollector{
		&fakeCollector{name: "cpu", counter: snapshot.CPUTime, values: map[int64]int64{1: 500, 2: 0}},
	}
	s, err := New(src, rec, opts, nil)
	require.NoError(t, err)

	n, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, rec.got, 3)
	assert.Nil(t, src.dumped[0], "no filter dumps every thread")

	first := rec.got[0]
	assert.Equal(t, int64(1), first.ThreadID)
	assert.Equal(t, "main", first.Name)
	assert.True(t, first.HasName)
	assert.Equal(t, snapshot.StateRunnable, first.State)
	assert.Equal(t, int64(1_700_000_000_000), first.Timestamp)
	assert.Equal(t, int64(500), first.Counter(snapshot.CPUTime))
	assert.Equal(t, int64(snapshot.Absent), first.Counter(snapshot.UserTime))

	assert.Equal(t, int64(0), rec.got[1].Counter(snapshot.CPUTime))
	assert.Equal(t, 2, rec.got[1].Stack.Depth())
	assert.Equal(t, int64(snapshot.Absent), rec.got[2].Counter(snapshot.CPUTime))
	assert.Equal(t, 0, rec.got[2].Stack.Depth())
	assert.Equal(t, 1, s.Ticks())
	assert.Equal(t, int64(3), s.Written())
}

func TestCollectorFailureLeavesCounterAbsent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	src := &fakeSource{threads: threads()}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.Collectors = []CounterCollector{
		&fakeCollector{name: "cpu", counter: snapshot.CPUTime, err: errors.New("gone")},
		&fakeCollector{name: "user", counter: snapshot.UserTime, values: map[int64]int64{2: 9}},
	}
	s, err := New(src, rec, opts, logger)
	require.NoError(t, err)

	n, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, snap := range rec.got {
		assert.Equal(t, int64(snapshot.Absent), snap.Counter(snapshot.CPUTime))
	}
	assert.Equal(t, int64(9), rec.got[1].Counter(snapshot.UserTime))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["collector"] == "cpu" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestFilterWithoutPrimeEnumeratesEachTick(t *testing.T) {
	src := &fakeSource{threads: threads()}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.ThreadFilter = "^worker-"
	s, err := New(src, rec, opts, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		n, err := s.Sample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, 3, src.enumerated)
	assert.Equal(t, []int64{2, 3}, src.dumped[0])
}

func TestPrimeCachesIDs(t *testing.T) {
	src := &fakeSource{threads: threads()}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.ThreadFilter = "worker-2"
	s, err := New(src, rec, opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.Prime(context.Background()))

	for i := 0; i < 3; i++ {
		n, err := s.Sample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, 1, src.enumerated)
	for _, ids := range src.dumped {
		assert.Equal(t, []int64{3}, ids)
	}
}

func TestPrimeWithNoMatchSkipsDump(t *testing.T) {
	src := &fakeSource{threads: threads()}
	opts := DefaultOptions()
	opts.ThreadFilter = "nothing"
	s, err := New(src, &recorder{}, opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.Prime(context.Background()))
	n, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, src.dumped)
}

func TestFilterAppliesToDumpedNames(t *testing.T) {
	// a source that ignores the requested ids
	src := &fakeSource{threads: threads()}
	opts := DefaultOptions()
	opts.ThreadFilter = "main"
	rec := &recorder{}
	s, err := New(src, rec, opts, nil)
	require.NoError(t, err)
	src.threads = append(src.threads, ThreadInfo{ID: 1, Name: "renamed"})
	_, err = s.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "main", rec.got[0].Name)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, &recorder{}, DefaultOptions(), nil)
	assert.Error(t, err)
	opts := DefaultOptions()
	opts.ThreadFilter = "("
	_, err = New(&fakeSource{}, &recorder{}, opts, nil)
	assert.Error(t, err)
}

func TestWriteErrorStopsTick(t *testing.T) {
	boom := errors.New("disk full")
	var calls int
	w := WriterFunc(func(*snapshot.ThreadSnapshot) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	s, err := New(&fakeSource{threads: threads()}, w, DefaultOptions(), nil)
	require.NoError(t, err)
	n, err := s.Sample(context.Background())
	assert.Equal(t, 1, n)
	assert.True(t, errors.Is(err, boom))
}

func TestRunStopsAtEOF(t *testing.T) {
	src := &fakeSource{threads: threads(), ticksBefore: 4}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.Interval = time.Millisecond
	s, err := New(src, rec, opts, nil)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 4, s.Ticks())
	assert.Len(t, rec.got, 12)
}

func TestRunTickLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.Interval = time.Millisecond
	opts.Ticks = 2
	s, err := New(&fakeSource{threads: threads()}, &recorder{}, opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, s.Ticks())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := New(&fakeSource{threads: threads()}, &recorder{}, DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, s.Ticks())
}

func TestRunReturnsSourceErrors(t *testing.T) {
	boom := errors.New("attach lost")
	s, err := New(&fakeSource{threads: threads(), dumpErr: boom}, &recorder{}, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Run(context.Background()), boom))
}

const twoDumps = `2024-01-01 00:00:00
Full thread dump test:

"main" #1 prio=5 tid=0x1 nid=0x65 runnable
   java.lang.Thread.State: RUNNABLE
	at a.Main.main(Main.java:3)

"worker" #2 prio=5 tid=0x2 nid=0x66 waiting on condition
   java.lang.Thread.State: WAITING (parking)
	at a.W.run(W.java:9)
`

func TestDumpSourceReplay(t *testing.T) {
	d1 := threaddump.Parse(strings.NewReader(twoDumps), time.UTC)
	d2 := threaddump.Parse(strings.NewReader(strings.Replace(twoDumps, "00:00:00", "00:00:05", 1)), time.UTC)
	bad := threaddump.Parse(strings.NewReader("garbage"), time.UTC)
	src := NewDumpSource(d1, bad, d2)
	assert.Equal(t, 2, src.Remaining())

	rec := &recorder{}
	opts := DefaultOptions()
	opts.Interval = time.Millisecond
	s, err := New(src, rec, opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, rec.got, 4)
	assert.Equal(t, d1.Timestamp.UnixMilli(), rec.got[0].Timestamp)
	assert.Equal(t, d2.Timestamp.UnixMilli(), rec.got[3].Timestamp)
	assert.Equal(t, "worker", rec.got[1].Name)
	assert.Equal(t, snapshot.StateWaiting, rec.got[1].State)
	assert.Equal(t, "run", rec.got[1].Stack.At(0).Method)

	_, err = src.Threads(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestDumpSourceFilteredIDs(t *testing.T) {
	d := threaddump.Parse(strings.NewReader(twoDumps), time.UTC)
	src := NewDumpSource(d)
	refs, err := src.Threads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ThreadRef{{ID: 1, Name: "main"}, {ID: 2, Name: "worker"}}, refs)

	infos, err := src.Dump(context.Background(), []int64{2})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(0x66), infos[0].NativeID)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(1)
	assert.Len(t, r.Collectors(), 2)
	assert.NotNil(t, r.GetByName("cpu"))
	assert.Nil(t, r.GetByName("nope"))

	sel, err := r.Select("user, cpu")
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, snapshot.UserTime, sel[0].Counter())
	assert.Equal(t, snapshot.CPUTime, sel[1].Counter())

	_, err = r.Select("cpu,bogus")
	assert.Error(t, err)
	sel, err = r.Select("")
	require.NoError(t, err)
	assert.Empty(t, sel)
}
