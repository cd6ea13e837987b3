package flamegraph

import (
	"encoding/json"
	"fmt"
	"io"
)

// Dataset is the tree in flamebearer layout, for report templates that draw
// the graph client side. Each level is a flat list of quads:
//
//	x offset (delta from the end of the previous box), total, self, name index
type Dataset struct {
	Names    []string  `json:"names"`
	Levels   [][]int64 `json:"levels"`
	NumTicks int64     `json:"numTicks"`
	MaxSelf  int64     `json:"maxSelf"`
	Units    string    `json:"units,omitempty"`
}

// NewDataset lays out t. Subtrees too narrow to show at width pixels are
// left out, as in Render; width <= 0 keeps every node.
func NewDataset(t *Tree, width int, units string) *Dataset {
	root := t.Root()
	d := &Dataset{
		Names:    []string{},
		Levels:   [][]int64{},
		NumTicks: root.Total,
		Units:    units,
	}
	if root.Total <= 0 {
		return d
	}

	var minTotal float64
	if width > 0 {
		minTotal = threshold(root.Total, width)
	}
	names := make(map[string]int64)

	var visit func(n *Node, level int, x int64)
	visit = func(n *Node, level int, x int64) {
		name := "total"
		if !n.IsRoot() {
			name = n.Frame.Name()
			if n.Terminal > d.MaxSelf {
				d.MaxSelf = n.Terminal
			}
		}
		idx, ok := names[name]
		if !ok {
			idx = int64(len(d.Names))
			names[name] = idx
			d.Names = append(d.Names, name)
		}
		if level == len(d.Levels) {
			d.Levels = append(d.Levels, []int64{})
		}
		d.Levels[level] = append(d.Levels[level], x, n.Total, n.Terminal, idx)

		cx := x
		for _, c := range n.Children() {
			if float64(c.Total) >= minTotal {
				visit(c, level+1, cx)
			}
			cx += c.Total
		}
	}
	visit(root, 0, 0)

	// delta encode the x offsets
	for _, l := range d.Levels {
		var prev int64
		for i := 0; i < len(l); i += 4 {
			l[i] -= prev
			prev += l[i] + l[i+1]
		}
	}
	return d
}

// WriteJSON encodes the dataset as JSON.
func (d *Dataset) WriteJSON(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("cannot encode dataset: %w", err)
	}
	return nil
}
