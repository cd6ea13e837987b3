// Package output renders capture summaries.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Format represents the output format type.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatAI    Format = "ai"
	FormatTSV   Format = "tsv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatAI, FormatTSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json, ai or tsv)", s)
}

// Formatter handles output formatting.
type Formatter struct {
	format    Format
	writer    io.Writer
	sparkline *SparklineTracker
	showScore bool
	capture   string
}

// NewFormatter creates a new formatter.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	return &Formatter{
		format: format,
		writer: writer,
	}
}

// SetSparklineTracker enables the CPU trend column.
func (f *Formatter) SetSparklineTracker(s *SparklineTracker) {
	f.sparkline = s
}

// SetShowScore enables health score display.
func (f *Formatter) SetShowScore(show bool) {
	f.showScore = show
}

// SetCapturePath names the capture file in suggested commands.
func (f *Formatter) SetCapturePath(path string) {
	f.capture = path
}

// Render outputs the summary in the configured format.
func (f *Formatter) Render(s *Summary) error {
	if f.sparkline != nil {
		for _, t := range s.PerThread {
			key := threadKey(t.ID)
			for _, v := range t.CPUSeries {
				f.sparkline.Record(key, float64(v))
			}
		}
	}

	switch f.format {
	case FormatJSON:
		return f.renderJSON(s)
	case FormatAI:
		return f.renderAI(s)
	case FormatTSV:
		return f.renderTSV(s)
	default:
		return f.renderTable(s)
	}
}

func threadKey(id int64) string {
	return "tid|" + strconv.FormatInt(id, 10)
}

// renderJSON outputs the summary as JSON.
func (f *Formatter) renderJSON(s *Summary) error {
	output := struct {
		*Summary
		Score *int `json:"score,omitempty"`
	}{Summary: s}
	if f.showScore {
		score := HealthScore(s)
		output.Score = &score
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func formatNanos(ns int64) string {
	if ns < 0 {
		return "-"
	}
	return time.Duration(ns).Round(time.Microsecond).String()
}

func formatTimestamp(ms int64) string {
	if ms < 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05.000")
}

// renderTable outputs the summary as styled tables.
func (f *Formatter) renderTable(s *Summary) error {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	stateStyles := map[string]lipgloss.Style{
		"RUNNABLE": lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true), // Green
		"BLOCKED":  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),  // Red
		"WAITING":  lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true), // Yellow
	}
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	newTable := func(headers []string, rows [][]string) *table.Table {
		return table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			}).
			Headers(headers...).
			Rows(rows...)
	}

	fmt.Fprintln(f.writer, titleStyle.Render("Capture Summary"))
	fmt.Fprintln(f.writer, strings.Repeat("═", 60))
	fmt.Fprintf(f.writer, "Records: %d   Threads: %d   Span: %s\n",
		s.Records, s.Threads, time.Duration(s.SpanMillis)*time.Millisecond)
	fmt.Fprintf(f.writer, "From %s to %s\n\n",
		formatTimestamp(s.FirstTimestamp), formatTimestamp(s.LastTimestamp))

	if len(s.States) > 0 {
		rows := make([][]string, len(s.States))
		for i, st := range s.States {
			name := st.State
			if style, ok := stateStyles[name]; ok {
				name = style.Render(name)
			}
			rows[i] = []string{name, strconv.FormatInt(st.Records, 10), fmt.Sprintf("%.1f%%", st.Percent)}
		}
		fmt.Fprintln(f.writer, newTable([]string{"STATE", "RECORDS", "SHARE"}, rows))
	}

	if len(s.PerThread) > 0 {
		hasSparklines := f.sparkline != nil
		headers := []string{"TID", "THREAD", "RECORDS", "BLOCKED", "CPU"}
		if hasSparklines {
			headers = append(headers, "TREND")
		}
		rows := make([][]string, len(s.PerThread))
		for i, t := range s.PerThread {
			row := []string{
				strconv.FormatInt(t.ID, 10),
				t.Name,
				strconv.FormatInt(t.Records, 10),
				strconv.FormatInt(t.Blocked, 10),
				formatNanos(t.CPUTime),
			}
			if hasSparklines {
				row = append(row, f.sparkline.Sparkline(threadKey(t.ID)))
			}
			rows[i] = row
		}
		fmt.Fprintln(f.writer, newTable(headers, rows))
	}

	if len(s.HotFrames) > 0 {
		rows := make([][]string, len(s.HotFrames))
		for i, h := range s.HotFrames {
			rows[i] = []string{h.Frame, strconv.FormatInt(h.Samples, 10), fmt.Sprintf("%.1f%%", h.Percent)}
		}
		fmt.Fprintln(f.writer, newTable([]string{"HOT FRAME", "SAMPLES", "SHARE"}, rows))
	} else {
		fmt.Fprintln(f.writer, dim.Render("No stack samples"))
	}

	if f.showScore {
		score := HealthScore(s)
		style := stateStyles["RUNNABLE"]
		if score < 80 {
			style = stateStyles["WAITING"]
		}
		if score < 50 {
			style = stateStyles["BLOCKED"]
		}
		fmt.Fprintln(f.writer)
		fmt.Fprintf(f.writer, "Health Score: %s\n",
			style.Render(fmt.Sprintf("%d/100 (%s)", score, ScoreLabel(score))))
	}

	return nil
}

// renderAI outputs the summary in an LLM-friendly format.
func (f *Formatter) renderAI(s *Summary) error {
	fmt.Fprintln(f.writer, "# Capture Summary")
	fmt.Fprintf(f.writer, "\n**Records:** %d, **threads:** %d, **span:** %s\n\n",
		s.Records, s.Threads, time.Duration(s.SpanMillis)*time.Millisecond)

	if blocked := s.Blocked(); blocked > 0 {
		fmt.Fprintln(f.writer, "## Issues Requiring Attention")
		fmt.Fprintln(f.writer)
		fmt.Fprintf(f.writer, "- **[CONTENTION]** %d of %d records (%.1f%%) were BLOCKED on a monitor.\n\n",
			blocked, s.Records, percent(blocked, s.Records))
	}

	fmt.Fprintln(f.writer, "## Thread States")
	fmt.Fprintln(f.writer)
	fmt.Fprintln(f.writer, "| State | Records | Share |")
	fmt.Fprintln(f.writer, "|-------|---------|-------|")
	for _, st := range s.States {
		fmt.Fprintf(f.writer, "| %s | %d | %.1f%% |\n", st.State, st.Records, st.Percent)
	}
	fmt.Fprintln(f.writer)

	if len(s.HotFrames) > 0 {
		fmt.Fprintln(f.writer, "## Hot Frames")
		fmt.Fprintln(f.writer)
		for i, h := range s.HotFrames {
			fmt.Fprintf(f.writer, "%d. `%s` - %d samples (%.1f%%)\n", i+1, h.Frame, h.Samples, h.Percent)
		}
		fmt.Fprintln(f.writer)
	}

	if len(s.PerThread) > 0 {
		fmt.Fprintln(f.writer, "## Busiest Threads")
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, "| TID | Thread | Records | Blocked | CPU |")
		fmt.Fprintln(f.writer, "|-----|--------|---------|---------|-----|")
		for _, t := range s.PerThread {
			fmt.Fprintf(f.writer, "| %d | %s | %d | %d | %s |\n",
				t.ID, t.Name, t.Records, t.Blocked, formatNanos(t.CPUTime))
		}
		fmt.Fprintln(f.writer)
	}

	suggestions := DrillDown(s, f.capture)
	if len(suggestions) > 0 {
		fmt.Fprintln(f.writer, "## Suggested Next Steps")
		fmt.Fprintln(f.writer)
		for _, sg := range suggestions {
			fmt.Fprintf(f.writer, "- `%s` - %s\n", sg.Command, sg.Reason)
		}
	}

	return nil
}

// renderTSV outputs the summary as tab-separated values.
func (f *Formatter) renderTSV(s *Summary) error {
	fmt.Fprintln(f.writer, "SECTION\tKEY\tNAME\tCOUNT\tVALUE")

	fmt.Fprintf(f.writer, "capture\trecords\t\t%d\t%d\n", s.Records, s.SpanMillis)
	for _, st := range s.States {
		fmt.Fprintf(f.writer, "state\t%s\t\t%d\t%.4f\n", st.State, st.Records, st.Percent)
	}
	for _, t := range s.PerThread {
		fmt.Fprintf(f.writer, "thread\t%d\t%s\t%d\t%d\n", t.ID, t.Name, t.Records, t.CPUTime)
	}
	for i, h := range s.HotFrames {
		fmt.Fprintf(f.writer, "frame\t%d\t%s\t%d\t%.4f\n", i+1, h.Frame, h.Samples, h.Percent)
	}

	return nil
}
