// Package session owns one user's live classification state and
// serializes its turns.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/bayes"
	"github.com/abhisek/mca/internal/ensemble"
	"github.com/abhisek/mca/internal/external"
	"github.com/abhisek/mca/internal/intervention"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
	"github.com/abhisek/mca/internal/thresholds"
)

// ErrClosed is returned by Turn after Close.
var ErrClosed = errors.New("session closed")

// Config wires a session to its collaborators. Only UserID is required.
type Config struct {
	UserID string

	// Profile is the user's last assessment. A nil profile starts from the
	// uniform prior and recommends against the live estimate alone.
	Profile *profile.Profile

	// Prior overrides the starting prior. The zero value derives it from
	// Profile.
	Prior bayes.Prior

	Thresholds      thresholds.Source
	External        external.Classifier
	ExternalTimeout time.Duration
	Worker          *ensemble.Worker
	Recommender     *intervention.Recommender
	WindowSize      int
	Log             *zap.Logger
	Clock           func() time.Time
}

// Result is the outcome of one turn.
type Result struct {
	Estimate        ensemble.Estimate             `json:"estimate"`
	Recommendations []intervention.Recommendation `json:"recommendations"`
}

// Session is one user's conversation. Turns are serialized; Close may be
// called concurrently with a turn, which then discards its result.
type Session struct {
	id      string
	userID  string
	profile *profile.Profile
	started time.Time
	now     func() time.Time
	log     *zap.Logger
	rec     *intervention.Recommender

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu    sync.Mutex
	est   *ensemble.Estimator
	shown map[string]bool
	last  *ensemble.Estimate
}

// New starts a session with a fresh id.
func New(cfg Config) (*Session, error) {
	if cfg.UserID == "" {
		return nil, &pattern.InputError{Field: "user_id", Value: cfg.UserID, Err: fmt.Errorf("required")}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Recommender == nil {
		cfg.Recommender = intervention.NewRecommender()
	}

	id := uuid.NewString()
	log := cfg.Log.With(zap.String("session", id), zap.String("user", cfg.UserID))

	var p *profile.Profile
	prior := bayes.Uniform()
	if cfg.Profile != nil {
		cp := *cfg.Profile
		p = &cp
		prior = cp.Prior()
	}
	if cfg.Prior.Dist != nil {
		prior = cfg.Prior
	}

	opts := []ensemble.Option{
		ensemble.WithSession(id, cfg.UserID),
		ensemble.WithLogger(log),
		ensemble.WithClock(cfg.Clock),
	}
	if cfg.External != nil {
		opts = append(opts, ensemble.WithExternal(cfg.External, cfg.ExternalTimeout))
	}
	if cfg.Worker != nil {
		opts = append(opts, ensemble.WithWorker(cfg.Worker))
	}
	if cfg.WindowSize > 0 {
		opts = append(opts, ensemble.WithWindowSize(cfg.WindowSize))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		userID:  cfg.UserID,
		profile: p,
		started: cfg.Clock(),
		now:     cfg.Clock,
		log:     log,
		rec:     cfg.Recommender,
		ctx:     ctx,
		cancel:  cancel,
		est:     ensemble.NewEstimator(prior, cfg.Thresholds, opts...),
		shown:   make(map[string]bool),
	}
	log.Debug("session started", zap.String("prior", string(prior.Source)))
	return s, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Prior is the prior the session started from.
func (s *Session) Prior() bayes.Prior { return s.est.Prior() }

// Turn classifies one turn of signals and recommends at most maxCount
// interventions for it. Recommended ids join the session's shown set.
func (s *Session) Turn(ctx context.Context, sig pattern.Signals, ictx intervention.Context, maxCount int) (Result, error) {
	if err := ictx.Validate(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return Result{}, ErrClosed
	}

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	est, err := s.est.Estimate(tctx, sig)
	if err != nil {
		if s.ctx.Err() != nil {
			return Result{}, ErrClosed
		}
		return Result{}, err
	}
	s.last = &est

	for id := range s.shown {
		ictx = ictx.Shown(id)
	}
	recs, err := s.rec.Recommend(s.subject(est), ictx, maxCount)
	if err != nil {
		return Result{}, err
	}
	for _, r := range recs {
		s.shown[r.ID] = true
	}
	return Result{Estimate: est, Recommendations: recs}, nil
}

// subject is the profile the recommender sees: the assessment with its
// pattern replaced by the live estimate once the estimate is settled.
func (s *Session) subject(est ensemble.Estimate) profile.Profile {
	p := profile.Profile{UserID: s.userID}
	if s.profile != nil {
		p = *s.profile
	}
	if !est.Fused.NeedMoreData || !p.Pattern.Valid() {
		p.Pattern = est.Fused.Pattern
	}
	return p
}

// Summary reports the session so far.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSummary(s)
}

// Close cancels any in-flight turn and ends the session. It is safe to
// call more than once.
func (s *Session) Close() Summary {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
		s.log.Debug("session closed")
	}
	return s.Summary()
}
