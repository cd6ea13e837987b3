// Package threaddump parses textual thread dumps of the form
//
//	2024-03-01 12:00:00
//	Full thread dump OpenJDK 64-Bit Server VM (17.0.2+8 mixed mode):
//
//	"main" #1 prio=5 os_prio=0 tid=0x00007f3ca8013000 nid=0x1a03 waiting on condition [0x00007f3cb1c2e000]
//	   java.lang.Thread.State: TIMED_WAITING (sleeping)
//		at java.lang.Thread.sleep(Native Method)
//		at com.example.Main.main(Main.java:12)
//
// into snapshots. Parsing is best effort: once the two header lines are
// accepted, lines that fit no rule are collected in Dump.Unparsed and the
// parse carries on.
package threaddump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// TimestampLayout is the layout of a dump's first line.
const TimestampLayout = "2006-01-02 15:04:05"

// HeaderMarker starts a dump's second line.
const HeaderMarker = "Full thread dump "

const maxLineSize = 1 << 20

// Thread is one thread block of a dump.
type Thread struct {
	snapshot.ThreadSnapshot

	Daemon     bool
	Number     int64 // the #N index, -1 if absent
	Priority   int   // -1 if absent
	OSPriority int   // -1 if absent
	NativeID   int64
	Mode       string

	StackAddress    uint64
	HasStackAddress bool

	// StateDetail is the parenthesised part of the state line.
	StateDetail string
	// Locks holds the "- " annotation lines in the order they appeared.
	Locks []string
}

func newThread() *Thread {
	t := &Thread{Number: -1, Priority: -1, OSPriority: -1}
	t.ThreadSnapshot.Reset()
	return t
}

// Dump is the result of parsing one text dump.
type Dump struct {
	Timestamp   time.Time
	Description string
	Threads     []*Thread
	// Unparsed holds lines that matched no rule, verbatim.
	Unparsed []string
	// Err is the I/O error that cut the input short, if any.
	Err error

	valid bool
}

// IsValid reports whether the header was accepted. Nothing else in an
// invalid dump should be trusted.
func (d *Dump) IsValid() bool {
	return d.valid
}

// Snapshots returns the thread snapshots in encounter order.
func (d *Dump) Snapshots() []*snapshot.ThreadSnapshot {
	out := make([]*snapshot.ThreadSnapshot, len(d.Threads))
	for i, t := range d.Threads {
		out[i] = &t.ThreadSnapshot
	}
	return out
}

// Source returns a snapshot.Source over the dump's threads.
func (d *Dump) Source() snapshot.Source {
	return snapshot.NewSliceSource(d.Snapshots())
}

type parseState int

const (
	stateScan parseState = iota
	stateBody
)

// Parse reads one dump from r. Header timestamps carry no zone, so loc is
// required; a nil loc yields an invalid dump.
func Parse(r io.Reader, loc *time.Location) *Dump {
	d := &Dump{}
	if loc == nil {
		d.Err = errors.New("threaddump: nil location")
		return d
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	if !d.parseHeader(scanner, loc) {
		return d
	}
	d.valid = true

	p := parser{dump: d, ts: d.Timestamp.UnixMilli()}
	for scanner.Scan() {
		p.line(strings.TrimRight(scanner.Text(), "\r"))
	}
	p.finish()
	if err := scanner.Err(); err != nil {
		d.Err = fmt.Errorf("cannot read dump: %w", err)
	}
	return d
}

func (d *Dump) parseHeader(scanner *bufio.Scanner, loc *time.Location) bool {
	var lines [2]string
	for i := range lines {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				d.Err = fmt.Errorf("cannot read dump header: %w", err)
			}
			return false
		}
		lines[i] = strings.TrimRight(scanner.Text(), "\r")
	}

	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(lines[0]), loc)
	if err != nil {
		return false
	}
	if !strings.HasPrefix(lines[1], HeaderMarker) {
		return false
	}
	d.Timestamp = ts
	d.Description = strings.TrimSuffix(strings.TrimSpace(lines[1][len(HeaderMarker):]), ":")
	return true
}

type parser struct {
	dump   *Dump
	ts     int64
	state  parseState
	cur    *Thread
	frames []snapshot.StackFrame
	// seenBodyLine is set once anything follows the thread header, after
	// which a state line is no longer accepted.
	seenBodyLine bool
}

func (p *parser) line(line string) {
	trimmed := strings.TrimSpace(line)

	if p.state == stateBody {
		switch {
		case trimmed == "":
			p.finish()
			return
		case !p.seenBodyLine && strings.HasPrefix(trimmed, stateLinePrefix):
			p.seenBodyLine = true
			if p.parseStateLine(trimmed) {
				return
			}
		case strings.HasPrefix(trimmed, "at "):
			p.seenBodyLine = true
			if f, ok := ParseFrame(trimmed[len("at "):]); ok {
				p.frames = append(p.frames, f)
				return
			}
		case strings.HasPrefix(trimmed, "-"):
			p.seenBodyLine = true
			p.cur.Locks = append(p.cur.Locks, trimmed)
			return
		default:
			// a header right after a body without a blank line still
			// starts a new thread
			if t, ok := ParseThreadHeader(trimmed); ok {
				p.finish()
				p.open(t)
				return
			}
		}
		p.dump.Unparsed = append(p.dump.Unparsed, line)
		return
	}

	if trimmed == "" {
		return
	}
	if t, ok := ParseThreadHeader(trimmed); ok {
		p.open(t)
		return
	}
	p.dump.Unparsed = append(p.dump.Unparsed, line)
}

func (p *parser) open(t *Thread) {
	t.Timestamp = p.ts
	p.cur = t
	p.frames = p.frames[:0]
	p.seenBodyLine = false
	p.state = stateBody
}

func (p *parser) finish() {
	if p.state != stateBody {
		return
	}
	p.cur.Stack = snapshot.NewFrameList(p.frames...)
	p.dump.Threads = append(p.dump.Threads, p.cur)
	p.cur = nil
	p.state = stateScan
}

const stateLinePrefix = "java.lang.Thread.State:"

func (p *parser) parseStateLine(trimmed string) bool {
	rest := strings.TrimSpace(trimmed[len(stateLinePrefix):])
	literal, detail, _ := strings.Cut(rest, " ")
	st, ok := snapshot.ParseThreadState(literal)
	if !ok {
		return false
	}
	detail = strings.TrimSpace(detail)
	if detail != "" {
		if !strings.HasPrefix(detail, "(") || !strings.HasSuffix(detail, ")") {
			return false
		}
		detail = detail[1 : len(detail)-1]
	}
	p.cur.State = st
	p.cur.StateDetail = detail
	return true
}
