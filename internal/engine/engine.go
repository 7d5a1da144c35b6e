// Package engine wires the shared collaborators (store, threshold
// learner, snapshot worker, external classifier) and hands out sessions.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/archive"
	"github.com/abhisek/mca/internal/bayes"
	"github.com/abhisek/mca/internal/config"
	"github.com/abhisek/mca/internal/ensemble"
	"github.com/abhisek/mca/internal/external"
	"github.com/abhisek/mca/internal/intervention"
	"github.com/abhisek/mca/internal/llm"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
	"github.com/abhisek/mca/internal/session"
	"github.com/abhisek/mca/internal/store"
	"github.com/abhisek/mca/internal/thresholds"
)

// Engine is shared by all sessions of a process.
type Engine struct {
	cfg     config.Config
	store   *store.Store
	owned   bool
	learner *thresholds.Learner
	worker  *ensemble.Worker
	ext     external.Classifier
	rec     *intervention.Recommender
	log     *zap.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists feedback, versions, profiles and snapshots in s.
// The engine does not close s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithExternal overrides the classifier built from config.
func WithExternal(c external.Classifier) Option {
	return func(e *Engine) { e.ext = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides time.Now for feedback and profile timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine from cfg. With a store, learner state is restored
// from it before New returns.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(e)
	}

	lopts := []thresholds.Option{thresholds.WithLogger(e.log), thresholds.WithClock(e.now)}
	if dir := cfg.Learner.ArchiveDir; dir != "" {
		a, err := archive.New(dir)
		if err != nil {
			return nil, err
		}
		lopts = append(lopts, thresholds.WithArchiver(a))
	}
	e.learner = thresholds.NewLearner(cfg.Learner.Config, lopts...)

	ropts := []intervention.Option{intervention.WithFatiguePenalty(cfg.Recommender.FatiguePenalty)}
	if cfg.Recommender.Caps != nil {
		ropts = append(ropts, intervention.WithCaps(cfg.Recommender.Caps))
	}
	e.rec = intervention.NewRecommender(ropts...)

	if e.store != nil {
		if err := e.restore(ctx); err != nil {
			return nil, err
		}
		sink := &snapshotSink{repo: e.store.SnapshotRepo(), keep: cfg.Store.SnapshotRetention}
		e.worker = ensemble.NewWorker(sink, cfg.Session.QueueSize, e.log)
	}
	return e, nil
}

// Open opens the configured store and external classifier and returns an
// engine that owns them.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	path := cfg.Store.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	} else if err := store.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	var provider llm.Provider
	if cfg.External.Kind == external.KindLLM {
		provider, err = llm.NewProvider(ctx, cfg.LLM, st.EventRepo(), log)
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	ext, err := external.New(cfg.External, provider, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	checkHealth(ctx, ext, cfg.External.EffectiveTimeout(), log)

	e, err := New(ctx, cfg, WithStore(st), WithExternal(ext), WithLogger(log))
	if err != nil {
		st.Close()
		return nil, err
	}
	e.owned = true
	log.Debug("engine ready",
		zap.String("db", path),
		zap.String("external", cfg.External.Kind),
		zap.Int("feedback", e.learner.Total()),
	)
	return e, nil
}

// healthChecker is implemented by classifiers with a liveness endpoint.
type healthChecker interface {
	Health(ctx context.Context) error
}

// checkHealth warns when the external classifier is not answering. Turns
// still run; they fall back to the Bayesian estimate.
func checkHealth(ctx context.Context, c external.Classifier, timeout time.Duration, log *zap.Logger) {
	hc, ok := c.(healthChecker)
	if !ok {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := hc.Health(hctx); err != nil {
		log.Warn("external classifier unhealthy", zap.Error(err))
	}
}

func (e *Engine) restore(ctx context.Context) error {
	versions, err := e.store.VersionRepo().List(ctx)
	if err != nil {
		return err
	}
	feedback, err := e.store.FeedbackRepo().List(ctx, store.QueryOpts{})
	if err != nil {
		return err
	}
	if err := e.learner.Restore(versions, feedback); err != nil {
		return fmt.Errorf("restore learner: %w", err)
	}
	return nil
}

func (e *Engine) Learner() *thresholds.Learner           { return e.learner }
func (e *Engine) Recommender() *intervention.Recommender { return e.rec }
func (e *Engine) Config() config.Config                  { return e.cfg }

// Store returns the backing store, or nil.
func (e *Engine) Store() *store.Store { return e.store }

// Profile returns the user's stored profile, or nil.
func (e *Engine) Profile(ctx context.Context, userID string) (*profile.Profile, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ProfileRepo().Get(ctx, userID)
}

// Assess classifies scores into a profile for userID and stores it. An
// existing profile is reassessed, keeping its trust history.
func (e *Engine) Assess(ctx context.Context, userID string, scores pattern.Scores, ind profile.Indicators) (profile.Profile, error) {
	prev, err := e.Profile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	var p profile.Profile
	if prev != nil {
		p, err = prev.Reassess(scores, ind, e.now())
	} else {
		p, err = profile.Assess(userID, scores, ind, e.now())
	}
	if err != nil {
		return profile.Profile{}, err
	}
	if e.store != nil {
		if err := e.store.ProfileRepo().Save(ctx, p); err != nil {
			return profile.Profile{}, err
		}
	}
	return p, nil
}

// historyLimit is how many of a user's confirmed labels seed a history
// prior.
const historyLimit = 50

// NewSession starts a session for userID, primed with the user's stored
// profile when one exists, otherwise with the patterns confirmed by the
// user's feedback.
func (e *Engine) NewSession(ctx context.Context, userID string) (*session.Session, error) {
	p, err := e.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	var prior bayes.Prior
	if p == nil {
		if prior, err = e.historyPrior(ctx, userID); err != nil {
			return nil, err
		}
	}
	return session.New(session.Config{
		UserID:          userID,
		Profile:         p,
		Prior:           prior,
		Thresholds:      e.learner,
		External:        e.ext,
		ExternalTimeout: e.cfg.External.EffectiveTimeout(),
		Worker:          e.worker,
		Recommender:     e.rec,
		WindowSize:      e.cfg.Session.WindowSize,
		Log:             e.log,
		Clock:           e.now,
	})
}

// historyPrior builds a prior from the user's most recent confirmed
// labels. Without a store or feedback it returns the zero Prior.
func (e *Engine) historyPrior(ctx context.Context, userID string) (bayes.Prior, error) {
	if e.store == nil || userID == "" {
		return bayes.Prior{}, nil
	}
	rows, err := e.store.FeedbackRepo().List(ctx, store.QueryOpts{UserID: userID, Limit: historyLimit})
	if err != nil {
		return bayes.Prior{}, err
	}
	if len(rows) == 0 {
		return bayes.Prior{}, nil
	}
	history := make([]pattern.Pattern, 0, len(rows))
	for _, fb := range rows {
		history = append(history, fb.Actual)
	}
	return bayes.FromHistory(history), nil
}

// RecordFeedback persists e and feeds it to the learner. A version is
// returned when the feedback triggered an adaptation.
func (e *Engine) RecordFeedback(ctx context.Context, fb thresholds.FeedbackEntry) (*thresholds.AlgorithmVersion, error) {
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = e.now().UTC()
	}

	if e.store != nil {
		if err := e.store.FeedbackRepo().Append(ctx, fb); err != nil {
			return nil, err
		}
	}
	v, err := e.learner.CollectFeedback(fb)
	if err != nil {
		return nil, err
	}
	if v != nil && e.store != nil {
		if err := e.store.VersionRepo().Save(ctx, *v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// Close drains the snapshot worker and closes an owned store.
func (e *Engine) Close() error {
	if e.worker != nil {
		e.worker.Close()
	}
	if e.owned {
		return e.store.Close()
	}
	return nil
}

// snapshotSink stores worker snapshots and trims old rows every
// pruneEvery saves.
type snapshotSink struct {
	repo  store.SnapshotRepo
	keep  int
	saved int
}

const pruneEvery = 100

func (s *snapshotSink) SaveSnapshot(ctx context.Context, snap ensemble.Snapshot) error {
	row := &store.StabilitySnapshot{
		Timestamp:    snap.Timestamp,
		SessionID:    snap.SessionID,
		UserID:       snap.UserID,
		Turn:         snap.Turn,
		Pattern:      string(snap.Pattern),
		Confidence:   snap.Confidence,
		Stable:       snap.Stability.IsStable,
		Trend:        string(snap.Stability.Trend),
		Oscillations: snap.Stability.Oscillations,
		Method:       string(snap.Method),
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return err
	}
	s.saved++
	if s.keep > 0 && s.saved%pruneEvery == 0 {
		if err := s.repo.Prune(ctx, s.keep); err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	return nil
}
