package flamegraph

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// RGB is a box fill colour.
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// ParseRGB parses "#rrggbb".
func ParseRGB(s string) (RGB, error) {
	if len(s) != 7 || s[0] != '#' {
		return RGB{}, fmt.Errorf("invalid colour %q, want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ColorPicker chooses the fill of a node's box.
type ColorPicker interface {
	Color(n *Node) RGB
}

// HashColors colours a node by hashing its package, class and method, so the
// same frame keeps its colour across renders. Scheme is "hot", "cold" or
// "mem".
type HashColors struct {
	Scheme string
}

func (h HashColors) Color(n *Node) RGB {
	f := n.Frame
	hf := fnv.New64a()
	hf.Write([]byte(f.Package()))
	hf.Write([]byte{0})
	hf.Write([]byte(f.SimpleClass()))
	hf.Write([]byte{0})
	hf.Write([]byte(f.Method))
	sum := hf.Sum64()

	// two independent spreads from one hash
	a := int(sum % 1000)
	b := int((sum >> 20) % 1000)
	switch h.Scheme {
	case "cold":
		return RGB{R: 30, G: uint8(50 + a*150/1000), B: uint8(150 + b*100/1000)}
	case "mem":
		return RGB{R: 30, G: uint8(190 + a*60/1000), B: uint8(30 + b*40/1000)}
	default:
		return RGB{R: uint8(200 + a*55/1000), G: uint8(50 + b*180/1000), B: 30}
	}
}

// Filter selects call paths. The path runs from the outermost frame down to
// the node being coloured.
type Filter interface {
	Match(path []snapshot.StackFrame) bool
}

// PatternFilter matches a path containing a frame whose "pkg.Class.method"
// name matches one of its glob patterns, where * matches any run of
// characters.
type PatternFilter struct {
	patterns []string
	re       *regexp.Regexp
}

// NewPatternFilter compiles patterns once.
func NewPatternFilter(patterns ...string) (*PatternFilter, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern filter needs at least one pattern")
	}
	alts := make([]string, len(patterns))
	for i, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		parts := strings.Split(p, "*")
		for j := range parts {
			parts[j] = regexp.QuoteMeta(parts[j])
		}
		alts[i] = strings.Join(parts, ".*")
	}
	re, err := regexp.Compile("^(?:" + strings.Join(alts, "|") + ")$")
	if err != nil {
		return nil, fmt.Errorf("cannot compile patterns %q: %w", patterns, err)
	}
	return &PatternFilter{patterns: patterns, re: re}, nil
}

func (p *PatternFilter) Match(path []snapshot.StackFrame) bool {
	for _, f := range path {
		if p.re.MatchString(f.Name()) {
			return true
		}
	}
	return false
}

func (p *PatternFilter) String() string {
	return strings.Join(p.patterns, ",")
}

// Category is a named colour for the paths a filter selects.
type Category struct {
	Name   string
	Filter Filter
	Color  RGB
}

// CategoryColors colours a node with the first category whose filter
// matches the node's path, and with Fallback otherwise.
type CategoryColors struct {
	Categories []Category
	Fallback   ColorPicker
}

func (c CategoryColors) Color(n *Node) RGB {
	path := n.Path()
	for _, cat := range c.Categories {
		if cat.Filter.Match(path) {
			return cat.Color
		}
	}
	if c.Fallback != nil {
		return c.Fallback.Color(n)
	}
	return HashColors{}.Color(n)
}

// Legend lists the categories for display.
func (c CategoryColors) Legend() []Category {
	return c.Categories
}

// ParseCategory parses "name=pattern[,pattern...][:#rrggbb]". Without an
// explicit colour one is derived from the name.
func ParseCategory(s string) (Category, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" || rest == "" {
		return Category{}, fmt.Errorf("invalid category %q, want name=pattern[:#rrggbb]", s)
	}
	var color RGB
	if i := strings.LastIndex(rest, ":#"); i >= 0 {
		c, err := ParseRGB(rest[i+1:])
		if err != nil {
			return Category{}, err
		}
		color = c
		rest = rest[:i]
	} else {
		color = HashColors{Scheme: "cold"}.Color(&Node{Frame: snapshot.StackFrame{Method: name}})
	}
	filter, err := NewPatternFilter(strings.Split(rest, ",")...)
	if err != nil {
		return Category{}, fmt.Errorf("category %q: %w", name, err)
	}
	return Category{Name: name, Filter: filter, Color: color}, nil
}
