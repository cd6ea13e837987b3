package snapshot

import "fmt"

// ThreadState is the lifecycle state of a thread at capture time.
type ThreadState uint8

const (
	StateUnset ThreadState = iota
	StateNew
	StateRunnable
	StateBlocked
	StateWaiting
	StateTimedWaiting
	StateTerminated
)

var stateNames = [...]string{
	StateUnset:        "",
	StateNew:          "NEW",
	StateRunnable:     "RUNNABLE",
	StateBlocked:      "BLOCKED",
	StateWaiting:      "WAITING",
	StateTimedWaiting: "TIMED_WAITING",
	StateTerminated:   "TERMINATED",
}

func (s ThreadState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ThreadState(%d)", uint8(s))
}

// ParseThreadState parses a state literal such as "TIMED_WAITING".
func ParseThreadState(s string) (ThreadState, bool) {
	for i, name := range stateNames {
		if i > 0 && name == s {
			return ThreadState(i), true
		}
	}
	return StateUnset, false
}

// Counter indexes the counter array of a snapshot.
type Counter int

const (
	CPUTime Counter = iota
	UserTime
	AllocatedBytes
	BlockedCount
	BlockedTime
	WaitCount
	WaitTime

	// MaxCounters is the fixed size of the counter array. Slots past the
	// named counters are reserved and carried verbatim.
	MaxCounters = 32
)

var counterNames = [...]string{
	CPUTime:        "cpu",
	UserTime:       "user",
	AllocatedBytes: "alloc",
	BlockedCount:   "blocked_count",
	BlockedTime:    "blocked_time",
	WaitCount:      "wait_count",
	WaitTime:       "wait_time",
}

func (c Counter) String() string {
	if c >= 0 && int(c) < len(counterNames) {
		return counterNames[c]
	}
	return fmt.Sprintf("counter%d", int(c))
}

// ParseCounter maps a counter name ("cpu", "alloc", ...) to its index.
func ParseCounter(s string) (Counter, bool) {
	for i, name := range counterNames {
		if name == s {
			return Counter(i), true
		}
	}
	return 0, false
}

// Absent marks an unset counter or timestamp.
const Absent = -1

// Tag is a free-form numeric annotation on a snapshot.
type Tag struct {
	Name  string
	Value int64
}

// ThreadSnapshot is one thread's state at one capture instant. A producer
// fills it during a tick and hands a Clone to the consumer; the clone is not
// modified afterwards.
type ThreadSnapshot struct {
	Timestamp int64 // milliseconds since the epoch, -1 when unset
	ThreadID  int64 // -1 when unset
	Name      string
	HasName   bool
	State     ThreadState
	Counters  [MaxCounters]int64
	Tags      []Tag
	Stack     *FrameList
}

// NewThreadSnapshot returns a reset snapshot.
func NewThreadSnapshot() *ThreadSnapshot {
	s := &ThreadSnapshot{}
	s.Reset()
	return s
}

// Reset clears every field back to its absent sentinel.
func (s *ThreadSnapshot) Reset() {
	s.Timestamp = Absent
	s.ThreadID = Absent
	s.Name = ""
	s.HasName = false
	s.State = StateUnset
	for i := range s.Counters {
		s.Counters[i] = Absent
	}
	s.Tags = s.Tags[:0]
	s.Stack = nil
}

// SetName sets the thread name and marks it present.
func (s *ThreadSnapshot) SetName(name string) {
	s.Name = name
	s.HasName = true
}

// Counter returns the value of c, or -1 if it is absent or out of range.
func (s *ThreadSnapshot) Counter(c Counter) int64 {
	if c < 0 || c >= MaxCounters {
		return Absent
	}
	return s.Counters[c]
}

// SetCounter sets the value of c. Out of range counters are ignored.
func (s *ThreadSnapshot) SetCounter(c Counter, v int64) {
	if c < 0 || c >= MaxCounters {
		return
	}
	s.Counters[c] = v
}

// Tag returns the value of the named tag.
func (s *ThreadSnapshot) Tag(name string) (int64, bool) {
	for _, t := range s.Tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return 0, false
}

// SetTag sets or appends a tag, keeping insertion order.
func (s *ThreadSnapshot) SetTag(name string, v int64) {
	for i := range s.Tags {
		if s.Tags[i].Name == name {
			s.Tags[i].Value = v
			return
		}
	}
	s.Tags = append(s.Tags, Tag{Name: name, Value: v})
}

// Clone returns a copy that shares nothing mutable with s. The frame list
// is immutable and therefore shared.
func (s *ThreadSnapshot) Clone() *ThreadSnapshot {
	cp := *s
	if s.Tags != nil {
		cp.Tags = make([]Tag, len(s.Tags))
		copy(cp.Tags, s.Tags)
	}
	return &cp
}

// Equal reports whether two snapshots carry identical data.
func (s *ThreadSnapshot) Equal(o *ThreadSnapshot) bool {
	if s.Timestamp != o.Timestamp || s.ThreadID != o.ThreadID ||
		s.HasName != o.HasName || s.Name != o.Name || s.State != o.State ||
		s.Counters != o.Counters || len(s.Tags) != len(o.Tags) {
		return false
	}
	for i := range s.Tags {
		if s.Tags[i] != o.Tags[i] {
			return false
		}
	}
	if (s.Stack == nil) != (o.Stack == nil) {
		return false
	}
	return s.Stack.Equal(o.Stack)
}
