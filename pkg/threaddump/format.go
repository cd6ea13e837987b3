package threaddump

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// WriteHeader writes the two header lines of a dump.
func WriteHeader(w io.Writer, ts time.Time, description string) error {
	_, err := fmt.Fprintf(w, "%s\n%s%s:\n\n", ts.Format(TimestampLayout), HeaderMarker, description)
	return err
}

// WriteThread writes s as a thread block followed by a blank line. The
// output parses back to the same name, id, state and frames, except that
// frames without a file lose their line number.
func WriteThread(w io.Writer, s *snapshot.ThreadSnapshot) error {
	bw := bufio.NewWriter(w)
	name := s.Name
	if !s.HasName {
		name = fmt.Sprintf("thread-%d", s.ThreadID)
	}
	fmt.Fprintf(bw, "\"%s\" tid=%#x nid=0x0 %s\n", name, uint64(s.ThreadID), modeFor(s.State))
	if s.State != snapshot.StateUnset {
		fmt.Fprintf(bw, "   %s %s\n", stateLinePrefix, s.State)
	}
	for i := 0; i < s.Stack.Depth(); i++ {
		fmt.Fprintf(bw, "\tat %s\n", s.Stack.At(i))
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

func modeFor(st snapshot.ThreadState) string {
	switch st {
	case snapshot.StateBlocked:
		return "waiting for monitor entry"
	case snapshot.StateWaiting, snapshot.StateTimedWaiting:
		return "waiting on condition"
	default:
		return "runnable"
	}
}
