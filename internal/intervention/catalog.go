package intervention

import (
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
)

// Category groups rules for capping.
type Category string

const (
	Verification Category = "verification"
	Reflection   Category = "reflection"
	Planning     Category = "planning"
	Learning     Category = "learning"
	Agency       Category = "agency"
)

// Rule is one catalog entry. Trigger must be a pure function of its
// arguments.
type Rule struct {
	ID           string
	Category     Category
	BasePriority int
	Trigger      func(p profile.Profile, c Context) bool
	DisabledFor  []pattern.Pattern
	Boosts       map[pattern.Pattern]int
	Message      string
	Why          string // shown as the trigger reason
}

func (r Rule) disabledFor(p pattern.Pattern) bool {
	for _, d := range r.DisabledFor {
		if d == p {
			return true
		}
	}
	return false
}

// Rule ids referenced outside the catalog.
const (
	RuleVerifyCriticalOutput = "verify-critical-output"
	RuleTakeTheLead          = "take-the-lead"
)

// DefaultCaps limits how many rules of each category one recommendation
// may contain.
func DefaultCaps() map[Category]int {
	return map[Category]int{
		Verification: 2,
		Reflection:   1,
		Planning:     2,
		Learning:     2,
		Agency:       1,
	}
}

// DefaultCatalog returns the built-in rules in tie-break order.
func DefaultCatalog() []Rule {
	return []Rule{
		{
			ID:           RuleVerifyCriticalOutput,
			Category:     Verification,
			BasePriority: 80,
			Trigger:      func(_ profile.Profile, c Context) bool { return c.TaskCriticality == High },
			Boosts:       map[pattern.Pattern]int{pattern.F: 15, pattern.B: 5, pattern.D: -20},
			Message:      "This task is high-stakes. Check the key facts in the answer before you rely on it.",
			Why:          "task criticality is high",
		},
		{
			ID:           "check-controversial-claim",
			Category:     Verification,
			BasePriority: 75,
			Trigger:      func(_ profile.Profile, c Context) bool { return c.ControversialClaim },
			Boosts:       map[pattern.Pattern]int{pattern.F: 10},
			Message:      "The answer makes a contested claim. Compare it with an independent source.",
			Why:          "the response contains a controversial claim",
		},
		{
			ID:           "verify-uncertain-claims",
			Category:     Verification,
			BasePriority: 65,
			Trigger:      func(_ profile.Profile, c Context) bool { return c.UncertaintyIndicators >= 2 },
			Boosts:       map[pattern.Pattern]int{pattern.F: 10, pattern.D: -15},
			Message:      "The assistant hedged several times. Confirm the uncertain parts.",
			Why:          "the response shows repeated uncertainty",
		},
		{
			ID:           "unverified-streak",
			Category:     Verification,
			BasePriority: 60,
			Trigger:      func(_ profile.Profile, c Context) bool { return c.ConsecutiveUnverified >= 3 },
			Boosts:       map[pattern.Pattern]int{pattern.F: 15, pattern.B: 5},
			Message:      "You have accepted several answers in a row without checking. Spot-check the last one.",
			Why:          "several consecutive answers were not verified",
		},
		{
			ID:           "calibrate-trust",
			Category:     Reflection,
			BasePriority: 60,
			Trigger: func(p profile.Profile, c Context) bool {
				return c.TrustScore >= 0.8 && p.Indicators.VerificationRate < 0.3
			},
			DisabledFor: []pattern.Pattern{pattern.D},
			Boosts:      map[pattern.Pattern]int{pattern.F: 20},
			Message:     "Your trust in the assistant is high compared with how often you check it. Is that warranted here?",
			Why:         "trust is high while verification is rare",
		},
		{
			ID:           "reflect-on-iterations",
			Category:     Reflection,
			BasePriority: 50,
			Trigger:      func(p profile.Profile, _ Context) bool { return p.Indicators.AvgIterations >= 4 },
			Boosts:       map[pattern.Pattern]int{pattern.B: 15},
			Message:      "Many rounds of rephrasing? Pause and restate what a good answer must contain.",
			Why:          "tasks take many iterations on average",
		},
		{
			ID:           "plan-complex-task",
			Category:     Planning,
			BasePriority: 60,
			Trigger:      func(_ profile.Profile, c Context) bool { return c.TaskComplexity == High },
			DisabledFor:  []pattern.Pattern{pattern.A},
			Boosts:       map[pattern.Pattern]int{pattern.F: 10, pattern.B: 10},
			Message:      "Break this task into steps before asking for the whole solution.",
			Why:          "task complexity is high",
		},
		{
			ID:           "define-roles",
			Category:     Planning,
			BasePriority: 45,
			Trigger: func(p profile.Profile, c Context) bool {
				return c.TaskComplexity.AtLeast(Medium) && p.Scores.P4 <= 1
			},
			DisabledFor: []pattern.Pattern{pattern.A},
			Boosts:      map[pattern.Pattern]int{pattern.F: 10},
			Message:     "Decide which parts you will do yourself and which you will hand to the assistant.",
			Why:         "role definition is weak on a non-trivial task",
		},
		{
			ID:           "explain-reasoning",
			Category:     Learning,
			BasePriority: 55,
			Trigger: func(p profile.Profile, c Context) bool {
				return c.TaskComplexity.AtLeast(Medium) && p.Scores.E1 <= 1
			},
			Boosts:  map[pattern.Pattern]int{pattern.E: 10, pattern.F: 5},
			Message: "Ask the assistant to explain why its answer is right, then judge the explanation.",
			Why:     "output evaluation is weak on a non-trivial task",
		},
		{
			ID:           "try-another-tool",
			Category:     Learning,
			BasePriority: 40,
			Trigger:      func(p profile.Profile, _ Context) bool { return p.Indicators.ToolEngagementRate < 0.3 },
			Boosts:       map[pattern.Pattern]int{pattern.C: -10},
			Message:      "Another tool may suit this step better. Consider a search engine or a calculator.",
			Why:          "little engagement with other tools",
		},
		{
			ID:           RuleTakeTheLead,
			Category:     Agency,
			BasePriority: 70,
			Trigger: func(p profile.Profile, c Context) bool {
				return p.Pattern == pattern.F || c.ConsecutiveUnverified >= 5
			},
			DisabledFor: []pattern.Pattern{pattern.A},
			Boosts:      map[pattern.Pattern]int{pattern.F: 10},
			Message:     "Try drafting your own answer first, then use the assistant to critique it.",
			Why:         "the assistant is doing most of the thinking",
		},
	}
}
