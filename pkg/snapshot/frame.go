// Package snapshot defines the in-memory model shared by every stage of the
// pipeline: stack frames, frame lists and per-thread snapshots.
package snapshot

import (
	"strconv"
	"strings"
)

// Reserved line numbers.
const (
	LineUnknown = -1
	LineNative  = -2
)

// StackFrame is one call-stack entry. It is a plain value; two frames with
// the same fields are interchangeable.
type StackFrame struct {
	Class  string
	Method string
	File   string // empty when unknown
	Line   int
}

// IsNative reports whether the frame is a native method.
func (f StackFrame) IsNative() bool {
	return f.Line == LineNative
}

// WithoutFile returns f with the source file stripped.
func (f StackFrame) WithoutFile() StackFrame {
	f.File = ""
	return f
}

// Package returns the class's package, or "" for the default package.
func (f StackFrame) Package() string {
	if i := strings.LastIndexByte(f.Class, '.'); i >= 0 {
		return f.Class[:i]
	}
	return ""
}

// SimpleClass returns the class name without its package.
func (f StackFrame) SimpleClass() string {
	if i := strings.LastIndexByte(f.Class, '.'); i >= 0 {
		return f.Class[i+1:]
	}
	return f.Class
}

// Name returns "Class.method".
func (f StackFrame) Name() string {
	if f.Class == "" {
		return f.Method
	}
	return f.Class + "." + f.Method
}

// String renders the frame the way it appears in a thread dump.
func (f StackFrame) String() string {
	var b strings.Builder
	b.WriteString(f.Name())
	b.WriteByte('(')
	switch {
	case f.Line == LineNative:
		b.WriteString("Native Method")
	case f.File == "":
		b.WriteString("Unknown Source")
	case f.Line >= 0:
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
	default:
		b.WriteString(f.File)
	}
	b.WriteByte(')')
	return b.String()
}

// Compare orders frames by class, line, method and file. It returns -1, 0 or
// +1.
func Compare(a, b StackFrame) int {
	if c := strings.Compare(a.Class, b.Class); c != 0 {
		return c
	}
	if a.Line != b.Line {
		if a.Line < b.Line {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Method, b.Method); c != 0 {
		return c
	}
	return strings.Compare(a.File, b.File)
}

// FrameList is an immutable call stack. Index 0 is the innermost frame.
type FrameList struct {
	frames []StackFrame
}

// NewFrameList builds a list from frames ordered innermost first. The input
// is copied.
func NewFrameList(frames ...StackFrame) *FrameList {
	cp := make([]StackFrame, len(frames))
	copy(cp, frames)
	return &FrameList{frames: cp}
}

// Depth returns the number of frames. A nil list has depth 0.
func (l *FrameList) Depth() int {
	if l == nil {
		return 0
	}
	return len(l.frames)
}

// At returns the i-th frame counting from the innermost one.
func (l *FrameList) At(i int) StackFrame {
	return l.frames[i]
}

// Frames returns a copy of the frames, innermost first.
func (l *FrameList) Frames() []StackFrame {
	if l == nil {
		return nil
	}
	cp := make([]StackFrame, len(l.frames))
	copy(cp, l.frames)
	return cp
}

// Equal reports whether both lists hold the same frames in the same order.
func (l *FrameList) Equal(o *FrameList) bool {
	if l.Depth() != o.Depth() {
		return false
	}
	for i := 0; i < l.Depth(); i++ {
		if l.frames[i] != o.frames[i] {
			return false
		}
	}
	return true
}
