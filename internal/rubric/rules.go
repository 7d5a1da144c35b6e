package rubric

import (
	"fmt"

	"github.com/abhisek/mca/internal/pattern"
)

// Rule is one branch of the rubric decision tree. Match reports whether
// the scores satisfy the branch's boundary condition.
type Rule struct {
	Pattern pattern.Pattern
	Name    string
	Match   func(s pattern.Scores) bool
}

// DefaultRules returns the rubric chain in evaluation order. Strategic
// control is tested before deep verification because an A profile also
// tends to satisfy D's verification floor; F is last so that weak but
// clearly iterative or adaptive profiles are not labeled passive.
func DefaultRules() []Rule {
	return []Rule{
		{
			Pattern: pattern.A,
			Name:    "strategic-control",
			Match: func(s pattern.Scores) bool {
				return s.P1 >= 2 && s.M2 >= 2 && s.E3 >= 2 && s.Total() >= 24
			},
		},
		{
			Pattern: pattern.D,
			Name:    "deep-verification",
			Match: func(s pattern.Scores) bool {
				return s.M2 == 3 && s.E1 >= 2 && s.Total() >= 20
			},
		},
		{
			Pattern: pattern.E,
			Name:    "collaborative-learning",
			Match: func(s pattern.Scores) bool {
				return s.E1+s.E2+s.E3 >= 6
			},
		},
		{
			Pattern: pattern.C,
			Name:    "context-adaptive",
			Match: func(s pattern.Scores) bool {
				return s.P3 >= 2 && s.M3 >= 2 && s.R2 >= 2 && s.Total() >= 22
			},
		},
		{
			Pattern: pattern.B,
			Name:    "iterative-refinement",
			Match: func(s pattern.Scores) bool {
				return s.R1 >= 2 && s.Total() >= 20
			},
		},
		{
			Pattern: pattern.F,
			Name:    "passive-reliance",
			Match: func(s pattern.Scores) bool {
				return s.Total() < 15 || (s.E2 == 0 && s.Total() < 20)
			},
		},
	}
}

// DefaultPattern is returned when no rule matches.
const DefaultPattern = pattern.C

// Run evaluates rules in order and returns the first match.
// Returns (DefaultPattern, "default", false) if no rule applies.
func Run(rules []Rule, s pattern.Scores) (pattern.Pattern, string, bool) {
	for _, r := range rules {
		if r.Match(s) {
			return r.Pattern, r.Name, true
		}
	}
	return DefaultPattern, "default", false
}

// Classify maps rubric scores onto a pattern. Out-of-range scores are
// clamped to [0,3] first, so Classify is total.
func Classify(s pattern.Scores) pattern.Pattern {
	p, _, _ := Run(DefaultRules(), s.Clamp())
	return p
}

// ClassifyChecked is Classify for untrusted input: out-of-range scores are
// rejected with an *pattern.InputError instead of clamped.
func ClassifyChecked(s pattern.Scores) (pattern.Pattern, error) {
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	p, _, _ := Run(DefaultRules(), s)
	return p, nil
}

// Classifier holds a rule chain. The zero value uses DefaultRules.
type Classifier struct {
	Rules []Rule
}

// Explain returns the pattern and the name of the rule that produced it.
func (c *Classifier) Explain(s pattern.Scores) (pattern.Pattern, string) {
	rules := c.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	p, name, _ := Run(rules, s.Clamp())
	return p, name
}
