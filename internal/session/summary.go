package session

import (
	"sort"
	"time"

	"github.com/abhisek/mca/internal/pattern"
)

// Summary is the end-of-session report.
type Summary struct {
	SessionID   string                  `json:"session_id"`
	UserID      string                  `json:"user_id"`
	Duration    time.Duration           `json:"duration"`
	Turns       int                     `json:"turns"`
	Pattern     pattern.Pattern         `json:"pattern,omitempty"`
	Confidence  float64                 `json:"confidence"`
	Stable      bool                    `json:"stable"`
	PatternRuns map[pattern.Pattern]int `json:"pattern_runs"`
	Shown       []string                `json:"shown"`
}

func buildSummary(s *Session) Summary {
	sum := Summary{
		SessionID:   s.id,
		UserID:      s.userID,
		Duration:    s.now().Sub(s.started),
		Turns:       s.est.Turn(),
		PatternRuns: make(map[pattern.Pattern]int),
		Shown:       make([]string, 0, len(s.shown)),
	}
	for _, e := range s.est.History() {
		sum.PatternRuns[e.Pattern]++
	}
	if s.last != nil {
		sum.Pattern = s.last.Fused.Pattern
		sum.Confidence = s.last.Fused.Confidence
		sum.Stable = s.last.Stability.IsStable
	}
	for id := range s.shown {
		sum.Shown = append(sum.Shown, id)
	}
	sort.Strings(sum.Shown)
	return sum
}
