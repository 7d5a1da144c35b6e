// Package ensemble fuses the Bayesian recognizer with an optional external
// classifier, tracks stability across turns and reports the result.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/bayes"
	"github.com/abhisek/mca/internal/external"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/stability"
	"github.com/abhisek/mca/internal/thresholds"
)

// Method records which sources contributed to a turn.
type Method string

const (
	MethodBayesianOnly Method = "bayesian-only"
	MethodEnsemble     Method = "ensemble"
)

// UnstableDamping scales the reported confidence when the window is
// oscillating.
const UnstableDamping = 0.8

// Estimate is the per-turn result. Bayesian and External are the raw inputs
// to the fusion, kept for auditing; External is nil when the external
// classifier was absent or failed.
type Estimate struct {
	Fused     pattern.Estimate     `json:"fused"`
	Bayesian  pattern.Estimate     `json:"bayesian"`
	External  pattern.Distribution `json:"external,omitempty"`
	Weights   Weights              `json:"weights"`
	Stability stability.Metrics    `json:"stability"`
	Method    Method               `json:"method"`
	Turn      int                  `json:"turn"`
}

// Estimator holds one session's fusion state. It is not safe for
// concurrent use; callers serialize turns.
type Estimator struct {
	rec        *bayes.Recognizer
	thresholds thresholds.Source
	ext        external.Classifier
	timeout    time.Duration
	window     *stability.Window
	worker     *Worker
	log        *zap.Logger
	now        func() time.Time

	sessionID string
	userID    string
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithExternal enables fusion with c, each call bounded by timeout
// (external.DefaultTimeout when zero).
func WithExternal(c external.Classifier, timeout time.Duration) Option {
	return func(e *Estimator) {
		e.ext = c
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithWorker posts a snapshot to w after every committed turn.
func WithWorker(w *Worker) Option {
	return func(e *Estimator) { e.worker = w }
}

// WithSession tags snapshots with the session and user ids.
func WithSession(sessionID, userID string) Option {
	return func(e *Estimator) { e.sessionID, e.userID = sessionID, userID }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Estimator) { e.log = log }
}

// WithClock overrides time.Now for window timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// WithWindowSize bounds the stability window.
func WithWindowSize(n int) Option {
	return func(e *Estimator) { e.window = stability.NewWindow(n) }
}

// NewEstimator starts a session at turn zero from prior. source supplies
// the live threshold set; nil means the defaults.
func NewEstimator(prior bayes.Prior, source thresholds.Source, opts ...Option) *Estimator {
	if source == nil {
		source = thresholds.Static(thresholds.Defaults())
	}
	e := &Estimator{
		rec:        bayes.NewRecognizer(prior, source),
		thresholds: source,
		timeout:    external.DefaultTimeout,
		window:     stability.NewWindow(stability.DefaultWindowSize),
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Turn is the number of committed turns.
func (e *Estimator) Turn() int { return e.rec.Turn() }

// History returns the stability window, oldest first.
func (e *Estimator) History() []stability.Entry { return e.window.Entries() }

// Prior is the prior the session started from.
func (e *Estimator) Prior() bayes.Prior { return e.rec.Prior() }

// Estimate processes one turn of signals. If ctx is cancelled before the
// turn commits, nothing is recorded and ctx.Err() is returned.
func (e *Estimator) Estimate(ctx context.Context, s pattern.Signals) (Estimate, error) {
	obs, err := e.rec.Observe(s)
	if err != nil {
		return Estimate{}, err
	}
	turn := obs.Turn

	extDist := e.consult(ctx, s, turn)

	weights, method := BayesianOnly, MethodBayesianOnly
	if extDist != nil {
		weights, method = Schedule(turn, e.rec.Prior().Informed()), MethodEnsemble
	}

	fused := make(pattern.Distribution, pattern.NumPatterns)
	for _, p := range pattern.All {
		fused[p] = weights.Bayesian*obs.Posterior[p] + weights.External*extDist[p]
	}
	evidence := obs.Estimate.Evidence
	if extDist != nil {
		top, pt, _, _ := extDist.Top()
		evidence = append(append([]string(nil), evidence...),
			fmt.Sprintf("turn %d: external top %s (%.2f), weights %.2f/%.2f", turn, top, pt, weights.Bayesian, weights.External))
	}
	est := pattern.NewEstimate(fused.Normalize(), evidence)

	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}

	if err := e.rec.Commit(obs); err != nil {
		return Estimate{}, err
	}
	e.window.Push(stability.Entry{Pattern: est.Pattern, Confidence: est.Confidence, Timestamp: e.now()})
	metrics := e.window.Analyze()

	// NeedMoreData judges the undamped confidence; damping only reports
	// the instability to the caller.
	est.NeedMoreData = est.Confidence < e.thresholds.Current().Get(thresholds.HybridExploration) &&
		turn < bayes.WarmupTurns
	if !metrics.IsStable {
		est = est.WithConfidence(est.Confidence * UnstableDamping)
	}

	out := Estimate{
		Fused:     est,
		Bayesian:  obs.Estimate,
		External:  extDist,
		Weights:   weights,
		Stability: metrics,
		Method:    method,
		Turn:      turn,
	}
	e.post(out)
	return out, nil
}

// consult asks the external classifier under the per-call timeout. Any
// failure is logged and yields nil.
func (e *Estimator) consult(ctx context.Context, s pattern.Signals, turn int) pattern.Distribution {
	if e.ext == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	d, err := e.ext.Classify(cctx, s)
	if err == nil {
		if verr := d.Validate(); verr != nil {
			err = fmt.Errorf("%w: %w", external.ErrUnavailable, verr)
		}
	}
	if err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			e.log.Warn("external classifier unavailable, using bayesian only",
				zap.String("session", e.sessionID),
				zap.Int("turn", turn),
				zap.Error(err),
			)
		}
		return nil
	}
	return d.Normalize()
}

func (e *Estimator) post(est Estimate) {
	if e.worker == nil {
		return
	}
	e.worker.Post(Snapshot{
		SessionID:  e.sessionID,
		UserID:     e.userID,
		Turn:       est.Turn,
		Pattern:    est.Fused.Pattern,
		Confidence: est.Fused.Confidence,
		Stability:  est.Stability,
		Method:     est.Method,
		Timestamp:  e.now(),
	})
}
