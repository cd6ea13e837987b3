package threaddump

import (
	"strconv"
	"strings"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// ParseThreadHeader parses a thread header line:
//
//	"<name>" [#<n>] [daemon] [prio=<d>] [os_prio=<d>] [<key>=<value>]... tid=0x<hex> nid=0x<hex> <mode> [[0x<hex>]]
//
// The name may itself contain quotes; it runs to the last quote before tid.
func ParseThreadHeader(line string) (*Thread, bool) {
	if len(line) < 2 || line[0] != '"' {
		return nil, false
	}
	tidAt := strings.LastIndex(line, " tid=")
	if tidAt < 0 {
		return nil, false
	}
	nameEnd := strings.LastIndexByte(line[:tidAt], '"')
	if nameEnd < 1 {
		return nil, false
	}

	t := newThread()
	t.SetName(line[1:nameEnd])

	for _, tok := range strings.Fields(line[nameEnd+1 : tidAt]) {
		if !t.attribute(tok) {
			return nil, false
		}
	}

	rest := line[tidAt+len(" tid="):]
	tidTok, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, false
	}
	tid, ok := parseHex(tidTok)
	if !ok {
		return nil, false
	}
	t.ThreadID = int64(tid)

	rest = strings.TrimLeft(rest, " ")
	if !strings.HasPrefix(rest, "nid=") {
		return nil, false
	}
	nidTok, rest, _ := strings.Cut(rest[len("nid="):], " ")
	nid, ok := parseHex(nidTok)
	if !ok {
		// newer runtimes print the native id in decimal
		if nid, ok = parseDecimal(nidTok); !ok {
			return nil, false
		}
	}
	t.NativeID = int64(nid)

	mode := strings.TrimSpace(rest)
	if strings.HasSuffix(mode, "]") {
		if open := strings.LastIndexByte(mode, '['); open >= 0 {
			if addr, ok := parseHex(mode[open+1 : len(mode)-1]); ok {
				t.StackAddress = addr
				t.HasStackAddress = true
				mode = strings.TrimSpace(mode[:open])
			}
		}
	}
	t.Mode = mode
	return t, true
}

// attribute applies one token between the name and tid. Unknown key=value
// pairs such as cpu= and elapsed= are accepted and dropped.
func (t *Thread) attribute(tok string) bool {
	switch {
	case tok == "daemon":
		t.Daemon = true
	case tok[0] == '#':
		n, err := strconv.ParseInt(tok[1:], 10, 64)
		if err != nil {
			return false
		}
		t.Number = n
	case tok[0] == '[' && tok[len(tok)-1] == ']':
		// bracketed native id printed by newer runtimes
		_, ok := parseDecimal(tok[1 : len(tok)-1])
		return ok
	default:
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return false
		}
		switch key {
		case "prio":
			n, err := strconv.Atoi(value)
			if err != nil {
				return false
			}
			t.Priority = n
		case "os_prio":
			n, err := strconv.Atoi(value)
			if err != nil {
				return false
			}
			t.OSPriority = n
		}
	}
	return true
}

func parseHex(s string) (uint64, bool) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	return v, err == nil
}

func parseDecimal(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

const (
	sourceNative  = "Native Method"
	sourceUnknown = "Unknown Source"
)

// ParseFrame parses the part of a frame line after "at ":
//
//	[<module>@<version>/]<class>.<method>(<source>)
//
// where source is "Native Method", "Unknown Source", "<file>" or
// "<file>:<line>".
func ParseFrame(s string) (snapshot.StackFrame, bool) {
	var f snapshot.StackFrame
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return f, false
	}
	head := stripModule(s[:open])
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 {
		return f, false
	}
	f.Class = head[:dot]
	f.Method = head[dot+1:]

	switch src := s[open+1 : len(s)-1]; src {
	case sourceNative:
		f.Line = snapshot.LineNative
	case sourceUnknown, "":
		f.Line = snapshot.LineUnknown
	default:
		f.File = src
		f.Line = snapshot.LineUnknown
		if colon := strings.LastIndexByte(src, ':'); colon >= 0 {
			if n, err := strconv.Atoi(src[colon+1:]); err == nil && n >= 0 {
				f.File = src[:colon]
				f.Line = n
			}
		}
	}
	return f, true
}

// stripModule drops class loader and module prefixes such as
// "java.base@17.0.2/" or "app//". Hidden class names contain "/0x" and keep
// their suffix.
func stripModule(head string) string {
	for {
		i := strings.IndexByte(head, '/')
		if i < 0 || strings.HasPrefix(head[i+1:], "0x") {
			return head
		}
		head = head[i+1:]
	}
}
