// Package intervention picks which educational nudges to show for a turn.
package intervention

import (
	"errors"
	"fmt"
	"sort"

	"github.com/abhisek/mca/internal/profile"
)

// ErrUnknownRule is returned for ids not in the catalog.
var ErrUnknownRule = errors.New("unknown intervention rule")

const (
	// FatiguePenalty is subtracted from rules the user has already seen.
	FatiguePenalty = 30

	// DefaultMaxCount is used when Recommend is called with maxCount <= 0.
	DefaultMaxCount = 3
)

// Urgency tiers by final priority.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// Display modes, one per urgency tier.
const (
	DisplayModal  = "modal"
	DisplayInline = "inline"
	DisplayBadge  = "badge"
)

// Evaluation is the outcome of checking one rule.
type Evaluation struct {
	ShouldTrigger bool   `json:"should_trigger"`
	Priority      int    `json:"priority"`
	Reason        string `json:"reason"`
}

// Recommendation is an intervention descriptor for the UI layer.
type Recommendation struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Priority int      `json:"priority"`
	Urgency  string   `json:"urgency"`
	Message  string   `json:"message"`
	Display  string   `json:"display"`
	Reason   string   `json:"reason"`
}

// Recommender evaluates a fixed rule catalog. It holds no per-user state and
// is safe for concurrent use.
type Recommender struct {
	rules   []Rule
	index   map[string]int
	caps    map[Category]int
	fatigue int
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithCatalog replaces the default rules.
func WithCatalog(rules []Rule) Option {
	return func(r *Recommender) { r.rules = rules }
}

// WithCaps replaces the per-category caps. Categories without a cap are
// unlimited.
func WithCaps(caps map[Category]int) Option {
	return func(r *Recommender) { r.caps = caps }
}

// WithFatiguePenalty overrides FatiguePenalty.
func WithFatiguePenalty(n int) Option {
	return func(r *Recommender) { r.fatigue = n }
}

func NewRecommender(opts ...Option) *Recommender {
	r := &Recommender{
		rules:   DefaultCatalog(),
		caps:    DefaultCaps(),
		fatigue: FatiguePenalty,
	}
	for _, o := range opts {
		o(r)
	}
	r.index = make(map[string]int, len(r.rules))
	for i, rule := range r.rules {
		r.index[rule.ID] = i
	}
	return r
}

// Rules returns the catalog in tie-break order.
func (r *Recommender) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// EvaluateTrigger checks one rule against the profile and context.
func (r *Recommender) EvaluateTrigger(id string, p profile.Profile, c Context) (Evaluation, error) {
	i, ok := r.index[id]
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownRule, id)
	}
	if err := c.Validate(); err != nil {
		return Evaluation{}, err
	}
	return r.evaluate(r.rules[i], p, c.normalized()), nil
}

func (r *Recommender) evaluate(rule Rule, p profile.Profile, c Context) Evaluation {
	priority := rule.BasePriority + rule.Boosts[p.Pattern]
	if c.PreviouslyShown[rule.ID] {
		priority -= r.fatigue
	}

	switch {
	case rule.disabledFor(p.Pattern):
		return Evaluation{Priority: priority, Reason: fmt.Sprintf("disabled for pattern %s", p.Pattern)}
	case !rule.Trigger(p, c):
		return Evaluation{Priority: priority, Reason: "conditions not met"}
	}
	reason := rule.Why
	if c.PreviouslyShown[rule.ID] {
		reason += " (shown before)"
	}
	return Evaluation{ShouldTrigger: true, Priority: priority, Reason: reason}
}

// Recommend returns up to maxCount triggered rules, highest priority first,
// with at most caps[category] per category.
func (r *Recommender) Recommend(p profile.Profile, c Context, maxCount int) ([]Recommendation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c = c.normalized()
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}

	type candidate struct {
		rule Rule
		eval Evaluation
	}
	var triggered []candidate
	for _, rule := range r.rules {
		if ev := r.evaluate(rule, p, c); ev.ShouldTrigger {
			triggered = append(triggered, candidate{rule, ev})
		}
	}
	sort.SliceStable(triggered, func(i, j int) bool {
		return triggered[i].eval.Priority > triggered[j].eval.Priority
	})

	used := make(map[Category]int)
	out := make([]Recommendation, 0, maxCount)
	for _, t := range triggered {
		if len(out) == maxCount {
			break
		}
		if limit, ok := r.caps[t.rule.Category]; ok && used[t.rule.Category] >= limit {
			continue
		}
		used[t.rule.Category]++
		out = append(out, describe(t.rule, t.eval))
	}
	return out, nil
}

func describe(rule Rule, ev Evaluation) Recommendation {
	urgency := UrgencyFor(ev.Priority)
	return Recommendation{
		ID:       rule.ID,
		Category: rule.Category,
		Priority: ev.Priority,
		Urgency:  urgency,
		Message:  rule.Message,
		Display:  DisplayFor(urgency),
		Reason:   ev.Reason,
	}
}

// UrgencyFor maps a priority to its tier: high from 75, medium from 50.
func UrgencyFor(priority int) string {
	switch {
	case priority >= 75:
		return UrgencyHigh
	case priority >= 50:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// DisplayFor maps an urgency tier to how the UI should present it.
func DisplayFor(urgency string) string {
	switch urgency {
	case UrgencyHigh:
		return DisplayModal
	case UrgencyMedium:
		return DisplayInline
	default:
		return DisplayBadge
	}
}
