package intervention

import (
	"fmt"

	"github.com/abhisek/mca/internal/pattern"
)

// Level grades task criticality and complexity.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

func (l Level) rank() int {
	switch l {
	case Low:
		return 0
	case Medium:
		return 1
	case High:
		return 2
	}
	return -1
}

// AtLeast reports whether l is at or above min.
func (l Level) AtLeast(min Level) bool { return l.rank() >= min.rank() }

// Context describes the current turn's environment.
type Context struct {
	TaskCriticality       Level           `json:"task_criticality" yaml:"task_criticality"`
	TaskComplexity        Level           `json:"task_complexity" yaml:"task_complexity"`
	UncertaintyIndicators int             `json:"uncertainty_indicators" yaml:"uncertainty_indicators"`
	ControversialClaim    bool            `json:"controversial_claim" yaml:"controversial_claim"`
	ConsecutiveUnverified int             `json:"consecutive_unverified" yaml:"consecutive_unverified"`
	TrustScore            float64         `json:"trust_score" yaml:"trust_score"`
	PreviouslyShown       map[string]bool `json:"previously_shown,omitempty" yaml:"previously_shown"`
}

// Shown marks ids as previously shown and returns c for chaining.
func (c Context) Shown(ids ...string) Context {
	m := make(map[string]bool, len(c.PreviouslyShown)+len(ids))
	for k, v := range c.PreviouslyShown {
		m[k] = v
	}
	for _, id := range ids {
		m[id] = true
	}
	c.PreviouslyShown = m
	return c
}

// Validate rejects unknown levels, negative counts and trust outside
// [0,1]. Empty levels are treated as low.
func (c Context) Validate() error {
	levels := []struct {
		field string
		level Level
	}{
		{"task_criticality", c.TaskCriticality},
		{"task_complexity", c.TaskComplexity},
	}
	for _, l := range levels {
		if l.level != "" && l.level.rank() < 0 {
			return &pattern.InputError{Field: l.field, Value: string(l.level), Err: fmt.Errorf("want low, medium or high")}
		}
	}
	if c.UncertaintyIndicators < 0 {
		return &pattern.InputError{Field: "uncertainty_indicators", Value: c.UncertaintyIndicators, Err: fmt.Errorf("must not be negative")}
	}
	if c.ConsecutiveUnverified < 0 {
		return &pattern.InputError{Field: "consecutive_unverified", Value: c.ConsecutiveUnverified, Err: fmt.Errorf("must not be negative")}
	}
	if c.TrustScore != c.TrustScore || c.TrustScore < 0 || c.TrustScore > 1 {
		return &pattern.InputError{Field: "trust_score", Value: c.TrustScore, Err: fmt.Errorf("must be in [0,1]")}
	}
	return nil
}

func (c Context) normalized() Context {
	if c.TaskCriticality == "" {
		c.TaskCriticality = Low
	}
	if c.TaskComplexity == "" {
		c.TaskComplexity = Low
	}
	return c
}
