package debug

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// DumpRawCounters prints every counter slot that holds a value, one row per
// snapshot.
func DumpRawCounters(w io.Writer, snaps []*snapshot.ThreadSnapshot) {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, title.Render("Raw Counter Dump"))
	fmt.Fprintln(w, dim.Render(strings.Repeat("═", 85)))
	fmt.Fprintf(w, "  %s %s %s %s\n",
		header.Render("TIMESTAMP      "),
		header.Render("TID       "),
		header.Render("THREAD                  "),
		header.Render("COUNTERS                    "))
	fmt.Fprintln(w, "  "+dim.Render(strings.Repeat("─", 85)))

	for _, s := range snaps {
		var parts []string
		for i, v := range s.Counters {
			if v != snapshot.Absent {
				parts = append(parts, fmt.Sprintf("%s=%d", snapshot.Counter(i), v))
			}
		}
		counters := strings.Join(parts, " ")
		if counters == "" {
			counters = dim.Render("-")
		}
		fmt.Fprintf(w, "  %-16d %-11d %-25s %s\n", s.Timestamp, s.ThreadID, s.Name, counters)
	}
}
