package thresholds

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/pattern"
)

// Config tunes the learner.
type Config struct {
	// Retention is the number of feedback entries held in memory.
	Retention int `yaml:"retention" toml:"retention"`
	// AnalyzeEvery triggers analysis each time the lifetime count reaches
	// a multiple of this value.
	AnalyzeEvery int `yaml:"analyze_every" toml:"analyze_every"`
	// Window is how many of a group's most recent entries feed its accuracy.
	Window int `yaml:"window" toml:"window"`
	// MinGroup is the number of entries a group must exceed before it is
	// considered.
	MinGroup int `yaml:"min_group" toml:"min_group"`
	// SharpenAbove is the accuracy above which a threshold is tightened.
	SharpenAbove float64 `yaml:"sharpen_above" toml:"sharpen_above"`
	// MinNudge discards adjustments smaller than this.
	MinNudge float64 `yaml:"min_nudge" toml:"min_nudge"`
}

// DefaultConfig returns the standard learner settings.
func DefaultConfig() Config {
	return Config{
		Retention:    500,
		AnalyzeEvery: 10,
		Window:       20,
		MinGroup:     5,
		SharpenAbove: 0.95,
		MinNudge:     0.001,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.AnalyzeEvery <= 0 {
		c.AnalyzeEvery = d.AnalyzeEvery
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MinGroup <= 0 {
		c.MinGroup = d.MinGroup
	}
	if c.SharpenAbove <= 0 {
		c.SharpenAbove = d.SharpenAbove
	}
	if c.MinNudge <= 0 {
		c.MinNudge = d.MinNudge
	}
	return c
}

// Group is a slice of feedback tied to one threshold.
type Group struct {
	Name      string
	Threshold string
	Target    float64
	Step      float64
	Member    func(e FeedbackEntry) bool
}

// DefaultGroups returns the F, A and hybrid groups.
func DefaultGroups() []Group {
	return []Group{
		{
			Name:      "F",
			Threshold: FQueryRatio,
			Target:    0.80,
			Step:      0.1,
			Member: func(e FeedbackEntry) bool {
				return e.Predicted == pattern.F || e.Actual == pattern.F
			},
		},
		{
			Name:      "A",
			Threshold: AVerification,
			Target:    0.85,
			Step:      0.02,
			Member: func(e FeedbackEntry) bool {
				return e.Predicted == pattern.A || e.Actual == pattern.A
			},
		},
		{
			Name:      "hybrid",
			Threshold: HybridExploration,
			Target:    0.75,
			Step:      0.05,
			Member: func(e FeedbackEntry) bool {
				return e.Context == HybridContext
			},
		},
	}
}

// tally is a running accuracy count.
type tally struct {
	total   int
	correct int
}

func (t tally) accuracy() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.correct) / float64(t.total)
}

// Learner adapts thresholds from labeled feedback. All state changes go
// through one mutex, so a single Learner may be shared across sessions.
type Learner struct {
	mu       sync.Mutex
	cfg      Config
	groups   []Group
	current  Set
	versions []AlgorithmVersion
	entries  []FeedbackEntry

	lifetime    tally
	falsePos    int
	actualSeen  [pattern.NumPatterns]bool
	byPredicted [pattern.NumPatterns]tally

	archiver Archiver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Learner.
type Option func(*Learner)

// WithArchiver hands evicted entries to a.
func WithArchiver(a Archiver) Option {
	return func(l *Learner) { l.archiver = a }
}

// WithLogger sets the learner's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithGroups replaces the default adaptation groups.
func WithGroups(groups []Group) Option {
	return func(l *Learner) { l.groups = groups }
}

// WithClock overrides time.Now for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// NewLearner creates a learner starting from the default thresholds.
func NewLearner(cfg Config, opts ...Option) *Learner {
	l := &Learner{
		cfg:     cfg.withDefaults(),
		groups:  DefaultGroups(),
		current: Defaults(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Current returns a copy of the thresholds in force.
func (l *Learner) Current() Set {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Clone()
}

// Versions returns every version produced, oldest first.
func (l *Learner) Versions() []AlgorithmVersion {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AlgorithmVersion, len(l.versions))
	for i, v := range l.versions {
		out[i] = v.clone()
	}
	return out
}

// Total returns the lifetime number of feedback entries.
func (l *Learner) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lifetime.total
}

// CollectFeedback records e. When the lifetime count reaches a multiple of
// AnalyzeEvery, analysis runs and any resulting version is returned.
func (l *Learner) CollectFeedback(e FeedbackEntry) (*AlgorithmVersion, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("collect feedback: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	evicted := l.appendLocked(e)
	var v *AlgorithmVersion
	if l.lifetime.total%l.cfg.AnalyzeEvery == 0 {
		v = l.analyzeLocked()
	}
	l.mu.Unlock()

	l.archive(evicted)
	return v, nil
}

// AnalyzeAndAdapt runs one adaptation pass now. It returns the new version,
// or nil when no threshold moved.
func (l *Learner) AnalyzeAndAdapt() *AlgorithmVersion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.analyzeLocked()
}

// Restore rebuilds state from persisted versions and feedback. Aggregates
// cover all of feedback; only the newest Retention entries are kept in
// memory. Nothing is archived.
func (l *Learner) Restore(versions []AlgorithmVersion, feedback []FeedbackEntry) error {
	for _, e := range feedback {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("restore feedback %s: %w", e.ID, err)
		}
	}
	vs := make([]AlgorithmVersion, len(versions))
	for i, v := range versions {
		vs[i] = v.clone()
	}
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Version < vs[j].Version })

	l.mu.Lock()
	defer l.mu.Unlock()

	l.versions = vs
	l.current = Defaults()
	if len(vs) > 0 {
		for k, v := range vs[len(vs)-1].Thresholds {
			l.current[k] = v
		}
	}
	l.entries = nil
	l.lifetime = tally{}
	l.falsePos = 0
	l.actualSeen = [pattern.NumPatterns]bool{}
	l.byPredicted = [pattern.NumPatterns]tally{}
	for _, e := range feedback {
		l.appendLocked(e)
	}
	return nil
}

// appendLocked adds e and returns entries evicted by retention.
func (l *Learner) appendLocked(e FeedbackEntry) []FeedbackEntry {
	l.entries = append(l.entries, e)
	l.lifetime.total++
	if e.Accurate {
		l.lifetime.correct++
	}
	if e.falsePositive() {
		l.falsePos++
	}
	l.actualSeen[e.Actual.Index()] = true
	t := &l.byPredicted[e.Predicted.Index()]
	t.total++
	if e.Accurate {
		t.correct++
	}

	if over := len(l.entries) - l.cfg.Retention; over > 0 {
		evicted := make([]FeedbackEntry, over)
		copy(evicted, l.entries[:over])
		l.entries = append(l.entries[:0], l.entries[over:]...)
		return evicted
	}
	return nil
}

func (l *Learner) archive(evicted []FeedbackEntry) {
	if len(evicted) == 0 || l.archiver == nil {
		return
	}
	if err := l.archiver.Archive(evicted); err != nil {
		l.logger.Warn("archive evicted feedback", zap.Int("entries", len(evicted)), zap.Error(err))
	}
}

func (l *Learner) analyzeLocked() *AlgorithmVersion {
	next := l.current.Clone()
	changes := make(map[string]Change)
	var reasons []string

	for _, g := range l.groups {
		members := l.membersLocked(g)
		if len(members) <= l.cfg.MinGroup {
			continue
		}
		if len(members) > l.cfg.Window {
			members = members[len(members)-l.cfg.Window:]
		}
		var correct int
		for _, e := range members {
			if e.Accurate {
				correct++
			}
		}
		acc := float64(correct) / float64(len(members))

		var delta float64
		var verb string
		switch {
		case acc < g.Target:
			delta, verb = -g.Step, "widen"
		case acc > l.cfg.SharpenAbove:
			delta, verb = g.Step, "sharpen"
		default:
			continue
		}

		from := next.Get(g.Threshold)
		to := clamp(from+delta, 0, 1)
		if math.Abs(to-from) < l.cfg.MinNudge {
			continue
		}
		next[g.Threshold] = to
		changes[g.Threshold] = Change{From: from, To: to}
		reasons = append(reasons, fmt.Sprintf("%s %s (accuracy %.2f, target %.2f)", verb, g.Name, acc, g.Target))
	}

	if len(changes) == 0 {
		return nil
	}

	number := 1
	if n := len(l.versions); n > 0 {
		number = l.versions[n-1].Version + 1
	}
	v := AlgorithmVersion{
		Version:     number,
		Timestamp:   l.now().UTC(),
		Description: strings.Join(reasons, "; "),
		Changes:     changes,
		Thresholds:  next.Clone(),
		Metrics:     l.metricsLocked(),
	}
	l.versions = append(l.versions, v)
	l.current = next

	l.logger.Info("thresholds adapted",
		zap.Int("version", v.Version),
		zap.String("description", v.Description),
		zap.Float64("accuracy", v.Metrics.Accuracy),
	)
	out := v.clone()
	return &out
}

func (l *Learner) membersLocked(g Group) []FeedbackEntry {
	var out []FeedbackEntry
	for _, e := range l.entries {
		if g.Member(e) {
			out = append(out, e)
		}
	}
	return out
}

func (l *Learner) metricsLocked() Metrics {
	m := Metrics{Total: l.lifetime.total}
	if m.Total == 0 {
		return m
	}
	m.Accuracy = l.lifetime.accuracy()
	m.FalsePositiveRate = float64(l.falsePos) / float64(m.Total)
	seen := 0
	for _, ok := range l.actualSeen {
		if ok {
			seen++
		}
	}
	m.Coverage = float64(seen) / pattern.NumPatterns
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
