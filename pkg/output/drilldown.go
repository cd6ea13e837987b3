package output

import (
	"fmt"
	"regexp"
)

// Suggestion represents a diagnostic next-step.
type Suggestion struct {
	Tool    string
	Command string
	Reason  string
}

// DrillDown returns follow-up commands worth running against the capture
// file a summary was computed from.
func DrillDown(s *Summary, capture string) []Suggestion {
	if capture == "" {
		capture = "capture.tsc"
	}
	var suggestions []Suggestion
	if s.Records == 0 {
		return suggestions
	}

	suggestions = append(suggestions,
		Suggestion{"threadscope", fmt.Sprintf("threadscope flame %s -o flame.svg", capture), "Flame graph of every record"},
	)
	if s.Blocked() > 0 {
		suggestions = append(suggestions,
			Suggestion{"threadscope", fmt.Sprintf("threadscope flame %s --state BLOCKED -o blocked.svg", capture), "Where threads wait for monitors"},
		)
	}
	if s.HasCPU() {
		suggestions = append(suggestions,
			Suggestion{"threadscope", fmt.Sprintf("threadscope flame %s --weight cpu -o cpu.svg", capture), "Weight stacks by CPU time instead of samples"},
		)
	}
	if len(s.PerThread) > 0 && s.PerThread[0].Name != "" {
		re := "^" + regexp.QuoteMeta(s.PerThread[0].Name) + "$"
		suggestions = append(suggestions,
			Suggestion{"threadscope", fmt.Sprintf("threadscope flame %s --filter '%s' -o thread.svg", capture, re), "Flame graph of the busiest thread"},
		)
	}
	return suggestions
}
