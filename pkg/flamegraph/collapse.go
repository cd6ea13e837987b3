package flamegraph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// WriteCollapsed writes t in folded stack format, one "outer;...;inner weight"
// line per path that has terminal weight, sorted lexically. Frames that only
// differ by line number fold into one entry.
func WriteCollapsed(w io.Writer, t *Tree) error {
	stacks := make(map[string]int64)
	t.Walk(func(n *Node) bool {
		if n.IsRoot() || n.Terminal == 0 {
			return true
		}
		path := n.Path()
		names := make([]string, len(path))
		for i, f := range path {
			names[i] = f.Name()
		}
		stacks[strings.Join(names, ";")] += n.Terminal
		return true
	})
	return writeCollapsed(w, stacks)
}

func writeCollapsed(w io.Writer, stacks map[string]int64) error {
	// Sort for deterministic output
	keys := make([]string, 0, len(stacks))
	for k := range stacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(w)
	for _, k := range keys {
		fmt.Fprintf(bw, "%s %d\n", k, stacks[k])
	}
	return bw.Flush()
}

// ReadCollapsed parses folded stacks into a tree. Each frame name is split
// into class and method at its last dot. Lines without a weight count once.
func ReadCollapsed(r io.Reader) (*Tree, error) {
	t := NewTree(nil)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var lineNo int
	var path []snapshot.StackFrame
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stack := line
		count := int64(1)
		if i := strings.LastIndexByte(line, ' '); i >= 0 {
			n, err := strconv.ParseInt(line[i+1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad weight %q", lineNo, line[i+1:])
			}
			stack, count = line[:i], n
		}

		path = path[:0]
		for _, name := range strings.Split(stack, ";") {
			path = append(path, frameFromName(name))
		}
		t.add(path, count)
		t.events++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read folded stacks: %w", err)
	}
	return t, nil
}

func frameFromName(name string) snapshot.StackFrame {
	f := snapshot.StackFrame{Method: name, Line: snapshot.LineUnknown}
	if i := strings.LastIndexByte(name, '.'); i > 0 && i < len(name)-1 {
		f.Class, f.Method = name[:i], name[i+1:]
	}
	return f
}
