package debug

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danpilch/threadscope/pkg/sampler"
	"github.com/danpilch/threadscope/pkg/snapshot"
)

// TraceWriter logs one line per snapshot before handing it to the wrapped
// writer.
type TraceWriter struct {
	mu    sync.Mutex
	out   io.Writer
	inner sampler.Writer
	now   func() time.Time
}

// NewTraceWriter wraps inner, writing trace lines to out.
func NewTraceWriter(out io.Writer, inner sampler.Writer) *TraceWriter {
	return &TraceWriter{out: out, inner: inner, now: time.Now}
}

// Write implements sampler.Writer.
func (t *TraceWriter) Write(s *snapshot.ThreadSnapshot) error {
	t.mu.Lock()
	fmt.Fprintf(t.out, "[TRACE %s] tid=%d name=%q state=%s depth=%d cpu=%d\n",
		t.now().Format("15:04:05.000"), s.ThreadID, s.Name, s.State,
		s.Stack.Depth(), s.Counter(snapshot.CPUTime))
	t.mu.Unlock()
	return t.inner.Write(s)
}
