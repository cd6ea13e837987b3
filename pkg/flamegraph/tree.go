// Package flamegraph aggregates snapshot streams into a weighted call tree
// and renders it as an SVG flame graph, a flamebearer style dataset or
// folded stacks.
package flamegraph

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// Node is one call path prefix. Total is the weight of every event whose
// stack passes through the node; Terminal is the part of it whose stack ends
// here. For every node Total == Terminal + the sum of its children's Total.
type Node struct {
	Frame    snapshot.StackFrame
	Total    int64
	Terminal int64

	parent   *Node
	depth    int
	children []*Node
}

// Children returns the node's children ordered by snapshot.Compare. The
// slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the child for f, or nil. The file of f is ignored.
func (n *Node) Child(f snapshot.StackFrame) *Node {
	f = f.WithoutFile()
	i := n.search(f)
	if i < len(n.children) && n.children[i].Frame == f {
		return n.children[i]
	}
	return nil
}

// Parent returns the enclosing node, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Depth is 0 for the root, 1 for outermost frames.
func (n *Node) Depth() int {
	return n.depth
}

// IsRoot reports whether n is the tree's root.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// Path returns the frames from the outermost one down to n. The root has an
// empty path.
func (n *Node) Path() []snapshot.StackFrame {
	path := make([]snapshot.StackFrame, n.depth)
	for p := n; p.parent != nil; p = p.parent {
		path[p.depth-1] = p.Frame
	}
	return path
}

func (n *Node) search(f snapshot.StackFrame) int {
	return sort.Search(len(n.children), func(i int) bool {
		return snapshot.Compare(n.children[i].Frame, f) >= 0
	})
}

func (n *Node) childOrInsert(f snapshot.StackFrame) *Node {
	i := n.search(f)
	if i < len(n.children) && n.children[i].Frame == f {
		return n.children[i]
	}
	c := &Node{Frame: f, parent: n, depth: n.depth + 1}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
	return c
}

func (n *Node) walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// Tree is a weighted call tree. It is not safe for concurrent use.
type Tree struct {
	root   *Node
	calc   WeightCalculator
	events int64
}

// NewTree returns an empty tree weighing events with calc. A nil calc counts
// samples.
func NewTree(calc WeightCalculator) *Tree {
	if calc == nil {
		calc = SampleWeight{}
	}
	return &Tree{root: &Node{}, calc: calc}
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Events returns the number of events fed so far, including zero weight ones.
func (t *Tree) Events() int64 {
	return t.events
}

// Feed adds one event. Frames are keyed without their source file. An event
// without frames weighs on the root.
func (t *Tree) Feed(s *snapshot.ThreadSnapshot) {
	t.events++
	w := t.calc.Weight(s)
	if w <= 0 {
		return
	}
	n := t.root
	n.Total += w
	for i := s.Stack.Depth() - 1; i >= 0; i-- {
		n = n.childOrInsert(s.Stack.At(i).WithoutFile())
		n.Total += w
	}
	n.Terminal += w
}

// add adds weight along path, outermost frame first.
func (t *Tree) add(path []snapshot.StackFrame, w int64) {
	if w <= 0 {
		return
	}
	n := t.root
	n.Total += w
	for _, f := range path {
		n = n.childOrInsert(f.WithoutFile())
		n.Total += w
	}
	n.Terminal += w
}

// FeedAll feeds every event of src and returns how many it consumed.
func (t *Tree) FeedAll(src snapshot.Source) (int, error) {
	var n int
	for {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("cannot read event %d: %w", n, err)
		}
		t.Feed(s)
		n++
	}
}

// Walk visits the nodes depth first, parents before children, until fn
// returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	t.root.walk(fn)
}

// FrameWeight is the terminal weight of one frame summed over every path.
type FrameWeight struct {
	Frame  snapshot.StackFrame
	Weight int64
}

// HotFrames returns the n frames with the largest terminal weight, heaviest
// first. n <= 0 returns all of them.
func (t *Tree) HotFrames(n int) []FrameWeight {
	byFrame := make(map[snapshot.StackFrame]int64)
	t.Walk(func(node *Node) bool {
		if !node.IsRoot() && node.Terminal > 0 {
			byFrame[node.Frame] += node.Terminal
		}
		return true
	})
	out := make([]FrameWeight, 0, len(byFrame))
	for f, w := range byFrame {
		out = append(out, FrameWeight{Frame: f, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return snapshot.Compare(out[i].Frame, out[j].Frame) < 0
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
