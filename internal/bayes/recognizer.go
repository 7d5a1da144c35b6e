package bayes

import (
	"errors"
	"fmt"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/thresholds"
)

// PosteriorFloor keeps every label recoverable after a run of
// contradicting evidence.
const PosteriorFloor = 1e-4

// WarmupTurns is the number of turns during which a low-confidence
// estimate is flagged NeedMoreData.
const WarmupTurns = 5

// ErrStaleObservation is returned by Commit when the observation was not
// computed from the recognizer's current state.
var ErrStaleObservation = errors.New("stale observation")

// Recognizer maintains one session's posterior over the six patterns.
// It is not safe for concurrent use; the owning session serializes turns.
type Recognizer struct {
	prior     Prior
	posterior pattern.Distribution
	turn      int
	source    thresholds.Source
}

// NewRecognizer starts from prior. A nil source uses the default thresholds.
func NewRecognizer(prior Prior, source thresholds.Source) *Recognizer {
	if prior.Dist == nil {
		prior = Uniform()
	}
	if source == nil {
		source = thresholds.Static(thresholds.Defaults())
	}
	return &Recognizer{
		prior:     prior,
		posterior: prior.Dist.Normalize(),
		source:    source,
	}
}

// Observation is a computed but not yet applied update.
type Observation struct {
	Estimate  pattern.Estimate
	Posterior pattern.Distribution
	Turn      int
}

// Prior returns the recognizer's starting prior.
func (r *Recognizer) Prior() Prior { return r.prior }

// Turn returns the number of committed observations.
func (r *Recognizer) Turn() int { return r.turn }

// Posterior returns a copy of the current posterior.
func (r *Recognizer) Posterior() pattern.Distribution { return r.posterior.Clone() }

// Observe computes the posterior after seeing signals without changing
// the recognizer. Out-of-range signals are rejected.
func (r *Recognizer) Observe(s pattern.Signals) (Observation, error) {
	if err := s.Validate(); err != nil {
		return Observation{}, fmt.Errorf("observe: %w", err)
	}
	th := r.source.Current()
	turn := r.turn + 1
	f := score(s, th)

	post := make(pattern.Distribution, pattern.NumPatterns)
	strongest, best := pattern.All[0], -1.0
	for i, p := range pattern.All {
		post[p] = r.posterior[p] * likelihood(f.score[i])
		if f.score[i] > best {
			strongest, best = p, f.score[i]
		}
	}
	post = applyFloor(post.Normalize())

	evidence := make([]string, 0, len(f.evidence)+1)
	for _, e := range f.evidence {
		evidence = append(evidence, fmt.Sprintf("turn %d: %s", turn, e))
	}
	evidence = append(evidence, fmt.Sprintf("turn %d: strongest fit %s (%.2f)", turn, strongest, best))

	est := pattern.NewEstimate(post, evidence)
	est.NeedMoreData = est.Confidence < th.Get(thresholds.HybridExploration) && turn < WarmupTurns
	return Observation{Estimate: est, Posterior: post, Turn: turn}, nil
}

// Commit applies an observation produced by Observe.
func (r *Recognizer) Commit(obs Observation) error {
	if obs.Turn != r.turn+1 || obs.Posterior == nil {
		return ErrStaleObservation
	}
	r.posterior = obs.Posterior.Clone()
	r.turn = obs.Turn
	return nil
}

// applyFloor raises every label to at least PosteriorFloor and renormalizes.
func applyFloor(d pattern.Distribution) pattern.Distribution {
	raised := false
	for _, p := range pattern.All {
		if d[p] < PosteriorFloor {
			d[p] = PosteriorFloor
			raised = true
		}
	}
	if raised {
		return d.Normalize()
	}
	return d
}
