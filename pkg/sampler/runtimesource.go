package sampler

import (
	"bufio"
	"bytes"
	"context"
	"runtime"
	"strconv"
	"strings"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// RuntimeSource samples the goroutines of the current process. Goroutine
// ids stand in for thread ids. Goroutines are not bound to OS threads, so
// NativeID is left zero and the /proc counter collectors have nothing to
// read for them.
type RuntimeSource struct {
	buf []byte
}

// NewRuntimeSource returns a source over the running process.
func NewRuntimeSource() *RuntimeSource {
	return &RuntimeSource{buf: make([]byte, 64<<10)}
}

func (s *RuntimeSource) stacks() []byte {
	for {
		n := runtime.Stack(s.buf, true)
		if n < len(s.buf) {
			return s.buf[:n]
		}
		s.buf = make([]byte, 2*len(s.buf))
	}
}

// Threads enumerates the live goroutines.
func (s *RuntimeSource) Threads(ctx context.Context) ([]ThreadRef, error) {
	infos := parseGoroutines(s.stacks(), nil)
	refs := make([]ThreadRef, len(infos))
	for i, g := range infos {
		refs[i] = ThreadRef{ID: g.ID, Name: g.Name}
	}
	return refs, nil
}

// Dump captures the stacks of the goroutines in ids, or of all of them.
func (s *RuntimeSource) Dump(ctx context.Context, ids []int64) ([]ThreadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return parseGoroutines(s.stacks(), wanted(ids)), nil
}

// parseGoroutines reads the text written by runtime.Stack:
//
//	goroutine 7 [chan receive, 2 minutes]:
//	main.worker(0xc000012345)
//		/src/main.go:42 +0x3d
//	created by main.main in goroutine 1
//		/src/main.go:17 +0x8f
func parseGoroutines(text []byte, want map[int64]bool) []ThreadInfo {
	var out []ThreadInfo
	var cur *ThreadInfo
	inCreatedBy := false

	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			cur = nil
		case strings.HasPrefix(line, "goroutine "):
			cur = nil
			g, ok := parseGoroutineHeader(line)
			if !ok || (want != nil && !want[g.ID]) {
				continue
			}
			out = append(out, g)
			cur = &out[len(out)-1]
			inCreatedBy = false
		case cur == nil:
		case strings.HasPrefix(line, "\t"):
			// file:line of the last frame
			if inCreatedBy || len(cur.Frames) == 0 {
				continue
			}
			f := &cur.Frames[len(cur.Frames)-1]
			loc := strings.TrimSpace(line)
			if sp := strings.LastIndex(loc, " +0x"); sp >= 0 {
				loc = loc[:sp]
			}
			if colon := strings.LastIndexByte(loc, ':'); colon >= 0 {
				if n, err := strconv.Atoi(loc[colon+1:]); err == nil {
					f.File, f.Line = loc[:colon], n
				}
			}
		case strings.HasPrefix(line, "created by "):
			inCreatedBy = true
		case strings.HasPrefix(line, "..."):
		default:
			if inCreatedBy {
				continue
			}
			cur.Frames = append(cur.Frames, goFrame(line))
		}
	}
	return out
}

func parseGoroutineHeader(line string) (ThreadInfo, bool) {
	rest := strings.TrimPrefix(line, "goroutine ")
	idTok, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return ThreadInfo{}, false
	}
	id, err := strconv.ParseInt(idTok, 10, 64)
	if err != nil {
		return ThreadInfo{}, false
	}
	open := strings.IndexByte(rest, '[')
	end := strings.LastIndex(rest, "]:")
	if open < 0 || end < open {
		return ThreadInfo{}, false
	}
	status, _, _ := strings.Cut(rest[open+1:end], ",")
	return ThreadInfo{
		ID:    id,
		Name:  "goroutine " + idTok,
		State: goroutineState(status),
	}, true
}

// goFrame turns "pkg/path.(*T).Method(args)" into a frame whose class is
// everything before the last dot after the final slash.
func goFrame(line string) snapshot.StackFrame {
	fn := line
	if strings.HasSuffix(fn, ")") {
		if open := strings.LastIndexByte(fn, '('); open > 0 {
			fn = fn[:open]
		}
	}
	f := snapshot.StackFrame{Method: fn, Line: snapshot.LineUnknown}
	slash := strings.LastIndexByte(fn, '/')
	base := fn[slash+1:]
	if br := strings.IndexByte(base, '['); br >= 0 {
		// type parameters may contain dots
		base = base[:br]
	}
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		dot += slash + 1
		f.Class, f.Method = fn[:dot], fn[dot+1:]
	}
	return f
}

func goroutineState(status string) snapshot.ThreadState {
	switch status {
	case "running", "runnable", "syscall":
		return snapshot.StateRunnable
	case "sleep":
		return snapshot.StateTimedWaiting
	case "sync.Mutex.Lock", "sync.RWMutex.Lock", "sync.RWMutex.RLock", "semacquire":
		return snapshot.StateBlocked
	case "dead":
		return snapshot.StateTerminated
	case "idle":
		return snapshot.StateNew
	default:
		return snapshot.StateWaiting
	}
}
