package profile

import (
	"fmt"
	"time"

	"github.com/abhisek/mca/internal/bayes"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/rubric"
)

// maxTrustHistory bounds the retained trust-score readings.
const maxTrustHistory = 20

// Indicators are behavioral aggregates collected alongside an assessment.
type Indicators struct {
	InteractionCount   int       `json:"interaction_count" yaml:"interaction_count"`
	VerificationRate   float64   `json:"verification_rate" yaml:"verification_rate"`
	AvgIterations      float64   `json:"avg_iterations" yaml:"avg_iterations"`
	TrustHistory       []float64 `json:"trust_history,omitempty" yaml:"trust_history"`
	ToolEngagementRate float64   `json:"tool_engagement_rate" yaml:"tool_engagement_rate"`
}

// Profile is a user's assessed collaboration pattern. It changes only
// through Reassess.
type Profile struct {
	UserID     string          `json:"user_id" yaml:"user_id"`
	Pattern    pattern.Pattern `json:"pattern" yaml:"pattern"`
	Scores     pattern.Scores  `json:"scores" yaml:"scores"`
	Indicators Indicators      `json:"indicators" yaml:"indicators"`
	AssessedAt time.Time       `json:"assessed_at" yaml:"assessed_at"`
}

// Assess builds a profile from rubric scores. Out-of-range scores are
// rejected.
func Assess(userID string, scores pattern.Scores, ind Indicators, at time.Time) (Profile, error) {
	if userID == "" {
		return Profile{}, &pattern.InputError{Field: "user_id", Value: userID, Err: fmt.Errorf("required")}
	}
	p, err := rubric.ClassifyChecked(scores)
	if err != nil {
		return Profile{}, fmt.Errorf("assess %s: %w", userID, err)
	}
	return Profile{
		UserID:     userID,
		Pattern:    p,
		Scores:     scores,
		Indicators: ind.normalized(),
		AssessedAt: at.UTC(),
	}, nil
}

// Reassess returns a new profile for fresh scores, keeping the user id.
// New trust readings are appended to the previous ones.
func (p Profile) Reassess(scores pattern.Scores, ind Indicators, at time.Time) (Profile, error) {
	hist := make([]float64, 0, len(p.Indicators.TrustHistory)+len(ind.TrustHistory))
	hist = append(hist, p.Indicators.TrustHistory...)
	ind.TrustHistory = append(hist, ind.TrustHistory...)
	return Assess(p.UserID, scores, ind, at)
}

// Prior returns the assessment-informed prior for a new session. A profile
// without a valid pattern yields the uniform prior.
func (p Profile) Prior() bayes.Prior {
	return bayes.FromAssessment(p.Pattern)
}

// TrustScore is the most recent trust reading, or 0.5 when none exist.
func (i Indicators) TrustScore() float64 {
	if n := len(i.TrustHistory); n > 0 {
		return i.TrustHistory[n-1]
	}
	return 0.5
}

func (i Indicators) normalized() Indicators {
	out := i
	if n := len(i.TrustHistory); n > maxTrustHistory {
		out.TrustHistory = append([]float64(nil), i.TrustHistory[n-maxTrustHistory:]...)
	} else {
		out.TrustHistory = append([]float64(nil), i.TrustHistory...)
	}
	return out
}
