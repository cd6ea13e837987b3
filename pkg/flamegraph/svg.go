package flamegraph

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"unicode/utf8"
)

// SVGOptions configures the flame graph SVG output.
type SVGOptions struct {
	Title  string
	Width  int
	Height int // 0 sizes the image to the tree
	// Colors picks box fills; nil uses HashColors with ColorScheme.
	Colors      ColorPicker
	ColorScheme string // "hot", "cold", "mem"
	// Unit names the weight in tooltips, e.g. "samples" or "ns".
	Unit string
}

// DefaultSVGOptions returns sensible defaults.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title:       "Flame Graph",
		Width:       1200,
		ColorScheme: "hot",
		Unit:        "samples",
	}
}

const (
	frameHeight   = 16
	fontSize      = 12
	headerHeight  = 40
	footerHeight  = 20
	margin        = 10
	bandHeight    = 3
	legendRowSize = 16
)

// threshold is the total below which a subtree is narrower than the
// resolution of the image and is not drawn.
func threshold(total int64, width int) float64 {
	return 1.5 * float64(total) / float64(width)
}

// Render draws t as an SVG flame graph, outermost frames at the bottom.
func Render(w io.Writer, t *Tree, opts SVGOptions) error {
	if opts.Width <= 2*margin {
		opts.Width = 1200
	}
	if opts.Unit == "" {
		opts.Unit = "samples"
	}
	colors := opts.Colors
	if colors == nil {
		colors = HashColors{Scheme: opts.ColorScheme}
	}

	root := t.Root()
	if root.Total <= 0 {
		return fmt.Errorf("no samples to render")
	}

	r := &renderer{
		colors:     colors,
		total:      root.Total,
		minTotal:   threshold(root.Total, opts.Width),
		chartWidth: float64(opts.Width - 2*margin),
		unit:       opts.Unit,
	}

	var legend []Category
	if l, ok := colors.(interface{ Legend() []Category }); ok {
		legend = l.Legend()
	}

	maxDepth := r.maxDepth(root)
	chartHeight := (maxDepth + 2) * frameHeight
	totalHeight := chartHeight + headerHeight + footerHeight + len(legend)*legendRowSize
	if opts.Height == 0 {
		opts.Height = totalHeight
	}

	bw := bufio.NewWriter(w)
	r.w = bw
	r.baseY = opts.Height - footerHeight

	fmt.Fprintf(bw, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg1.1.dtd">
<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
<defs>
  <pattern id="unattributed" width="4" height="4" patternUnits="userSpaceOnUse" patternTransform="rotate(45)">
    <rect width="2" height="4" fill="#888"/>
  </pattern>
</defs>
<style>
  .func:hover { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: monospace; font-size: %dpx; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="white"/>
<text x="%d" y="20" text-anchor="middle" style="font-size:16px; font-weight:bold;">%s</text>
<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">(%d %s)</text>
`,
		opts.Width, opts.Height, fontSize,
		opts.Width, opts.Height,
		opts.Width/2, html.EscapeString(opts.Title),
		opts.Width/2, root.Total, html.EscapeString(opts.Unit))

	for i, cat := range legend {
		y := headerHeight + i*legendRowSize
		fmt.Fprintf(bw, `<rect x="%d" y="%d" width="12" height="12" fill="%s"/>
<text x="%d" y="%d" fill="black">%s</text>
`, margin, y, cat.Color, margin+16, y+10, html.EscapeString(cat.Name))
	}

	r.node(root, margin)

	fmt.Fprintln(bw, "</svg>")
	return bw.Flush()
}

type renderer struct {
	w          *bufio.Writer
	colors     ColorPicker
	total      int64
	minTotal   float64
	chartWidth float64
	baseY      int
	unit       string
}

func (r *renderer) maxDepth(n *Node) int {
	d := n.Depth()
	for _, c := range n.Children() {
		if float64(c.Total) < r.minTotal {
			continue
		}
		if cd := r.maxDepth(c); cd > d {
			d = cd
		}
	}
	return d
}

func (r *renderer) width(weight int64) float64 {
	return r.chartWidth * float64(weight) / float64(r.total)
}

func (r *renderer) node(n *Node, x float64) {
	width := r.width(n.Total)
	y := r.baseY - n.Depth()*frameHeight

	name := "all"
	fill := RGB{R: 220, G: 220, B: 220}
	if !n.IsRoot() {
		name = n.Frame.Name()
		fill = r.colors.Color(n)
	}

	fmt.Fprintf(r.w, `<g class="func">
<title>%s (%d %s, %.2f%%)</title>
<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s" rx="1"/>
`, html.EscapeString(name), n.Total, html.EscapeString(r.unit),
		float64(n.Total)/float64(r.total)*100,
		x, y-frameHeight, width, frameHeight-1, fill)

	// Add text if frame is wide enough
	if width > 40 {
		label := truncateLabel(name, int(width-4)/7) // approximate char width
		if label != "" {
			fmt.Fprintf(r.w, `<text x="%.1f" y="%d" fill="black">%s</text>
`, x+2, y-4, html.EscapeString(label))
		}
	}
	fmt.Fprintln(r.w, "</g>")

	childX := x
	for _, c := range n.Children() {
		if float64(c.Total) >= r.minTotal {
			r.node(c, childX)
		}
		childX += r.width(c.Total)
	}

	// Weight that ends here while deeper paths exist.
	if n.Terminal > 0 && len(n.Children()) > 0 && float64(n.Terminal) >= r.minTotal {
		bw := r.width(n.Terminal)
		fmt.Fprintf(r.w, `<rect class="unattributed" x="%.1f" y="%d" width="%.1f" height="%d" fill="url(#unattributed)"><title>%s: %d %s unattributed</title></rect>
`, childX, y-frameHeight-bandHeight, bw, bandHeight,
			html.EscapeString(name), n.Terminal, html.EscapeString(r.unit))
	}
}

// truncateLabel shortens s to at most maxChars runes, marking the cut with
// "..". It returns "" when not even a prefix fits.
func truncateLabel(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxChars-2 {
			return s[:i] + ".."
		}
		n++
	}
	return s
}
