package baseline

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/threadscope/pkg/output"
)

// Severity indicates the magnitude of a drift.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityRegress  Severity = "regression"
)

// Kind says what a comparison row measures.
type Kind string

const (
	KindState Kind = "state"
	KindFrame Kind = "frame"
)

// Comparison is the drift of one share, in percent of records or samples.
type Comparison struct {
	Kind        Kind
	Key         string
	BaselineVal float64
	CurrentVal  float64
	DeltaPct    float64
	Severity    Severity
}

var (
	blTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	blHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	blDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	blOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	blWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	blErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	blMinor  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

func shares(s *output.Summary) map[string]float64 {
	m := make(map[string]float64, len(s.States)+len(s.HotFrames))
	for _, st := range s.States {
		m[string(KindState)+"|"+st.State] = st.Percent
	}
	for _, h := range s.HotFrames {
		m[string(KindFrame)+"|"+h.Frame] = h.Percent
	}
	return m
}

// Compare matches thread states and hot frames by name and reports the
// drift of their shares. Entries present on only one side compare against
// a share of zero.
func Compare(baseline *Baseline, current *output.Summary) []Comparison {
	base := shares(baseline.Summary)
	cur := shares(current)

	keys := make([]string, 0, len(base)+len(cur))
	for k := range base {
		keys = append(keys, k)
	}
	for k := range cur {
		if _, ok := base[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	comparisons := make([]Comparison, 0, len(keys))
	for _, key := range keys {
		kind, name, _ := strings.Cut(key, "|")
		b, c := base[key], cur[key]

		var deltaPct float64
		if b != 0 {
			deltaPct = ((c - b) / math.Abs(b)) * 100
		} else if c != 0 {
			deltaPct = 100
		}

		comparisons = append(comparisons, Comparison{
			Kind:        Kind(kind),
			Key:         name,
			BaselineVal: b,
			CurrentVal:  c,
			DeltaPct:    deltaPct,
			Severity:    classifySeverity(deltaPct),
		})
	}
	return comparisons
}

func classifySeverity(deltaPct float64) Severity {
	absDelta := math.Abs(deltaPct)
	if absDelta < 5 {
		return SeverityNone
	}
	if absDelta < 15 {
		return SeverityMinor
	}
	if absDelta < 30 {
		return SeverityModerate
	}
	if deltaPct > 0 {
		return SeverityRegress
	}
	return SeverityMajor
}

// RenderComparison outputs a styled comparison table.
func RenderComparison(w io.Writer, baseline *Baseline, comparisons []Comparison) {
	fmt.Fprintln(w, blTitle.Render("Baseline Comparison"))
	fmt.Fprintln(w, blDim.Render(strings.Repeat("═", 90)))
	fmt.Fprintf(w, "Comparing against %s (from %s)\n\n",
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%q", baseline.Name)),
		blDim.Render(baseline.Timestamp.Format("2006-01-02 15:04:05")))

	fmt.Fprintf(w, "  %s %s %s %s %s %s\n",
		blHeader.Render("KIND  "),
		blHeader.Render("NAME                            "),
		blHeader.Render("BASELINE"),
		blHeader.Render("CURRENT "),
		blHeader.Render("DELTA    "),
		blHeader.Render("SEVERITY  "))
	fmt.Fprintln(w, "  "+blDim.Render(strings.Repeat("─", 90)))

	regressions := 0
	for _, c := range comparisons {
		deltaStr := fmt.Sprintf("%+.1f%%", c.DeltaPct)
		var sevStr string
		switch c.Severity {
		case SeverityRegress:
			sevStr = blErr.Render("REGRESSION")
			regressions++
		case SeverityMajor:
			sevStr = blErr.Render("MAJOR")
			regressions++
		case SeverityModerate:
			sevStr = blWarn.Render("moderate")
		case SeverityMinor:
			sevStr = blMinor.Render("minor")
		default:
			sevStr = blOK.Render("none")
		}

		fmt.Fprintf(w, "  %-8s %-34s %-9.2f %-9.2f %-10s %s\n",
			c.Kind, c.Key, c.BaselineVal, c.CurrentVal, deltaStr, sevStr)
	}

	fmt.Fprintln(w)
	if regressions > 0 {
		fmt.Fprintf(w, "  %s\n", blErr.Render(fmt.Sprintf("%d significant shifts detected.", regressions)))
	} else {
		fmt.Fprintf(w, "  %s\n", blOK.Render("No significant shifts detected."))
	}
}

// RenderList outputs the saved baselines as a styled table.
func RenderList(w io.Writer, entries []Entry) {
	fmt.Fprintln(w, blTitle.Render("Saved Baselines"))
	fmt.Fprintln(w, blDim.Render(strings.Repeat("═", 90)))
	if len(entries) == 0 {
		fmt.Fprintf(w, "  %s\n", blDim.Render("No baselines saved."))
		return
	}

	fmt.Fprintf(w, "  %s %s %s %s %s %s\n",
		blHeader.Render("NAME            "),
		blHeader.Render("SAVED              "),
		blHeader.Render("RECORDS "),
		blHeader.Render("THREADS"),
		blHeader.Render("BLOCKED"),
		blHeader.Render("CAPTURE"))
	fmt.Fprintln(w, "  "+blDim.Render(strings.Repeat("─", 90)))
	for _, e := range entries {
		if e.Err != nil {
			fmt.Fprintf(w, "  %-18s %s\n", e.Name, blErr.Render("unreadable: "+e.Err.Error()))
			continue
		}
		fmt.Fprintf(w, "  %-18s %-20s %-9d %-8d %-8s %s\n",
			e.Name, e.Timestamp.Format("2006-01-02 15:04:05"), e.Records, e.Threads,
			fmt.Sprintf("%.1f%%", e.BlockedPct), e.Capture)
	}
}
