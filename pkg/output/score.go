package output

// HealthScore computes a 0-100 score from the share of records that were
// not BLOCKED on a monitor. An empty capture scores 100.
func HealthScore(s *Summary) int {
	if s.Records == 0 {
		return 100
	}
	score := 100 - int(100*s.Blocked()/s.Records)
	if score < 0 {
		score = 0
	}
	return score
}

// ScoreLabel returns a human-readable label for a health score.
func ScoreLabel(score int) string {
	if score >= 80 {
		return "Healthy"
	}
	if score >= 50 {
		return "Contended"
	}
	return "Critical"
}
