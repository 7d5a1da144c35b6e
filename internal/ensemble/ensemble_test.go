package ensemble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abhisek/mca/internal/bayes"
	"github.com/abhisek/mca/internal/external"
	"github.com/abhisek/mca/internal/external/mocks"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/stability"
	"github.com/abhisek/mca/internal/thresholds"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose stats worker starts in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func uniformSignals(v float64) pattern.Signals {
	return pattern.Signals{
		TaskDecomposition: v, GoalClarity: v, StrategyPlanning: v, RoleDefinition: v,
		ProgressTracking: v, VerificationRate: v, TrustCalibration: v,
		QualityEvaluation: v, RiskAwareness: v, CapabilityJudgment: v,
		IterationRate: v, ToolSwitching: v,
	}
}

var passive = uniformSignals(0.1)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestSchedule(t *testing.T) {
	tests := []struct {
		turn     int
		informed bool
		want     Weights
	}{
		{1, false, Weights{0.70, 0.30}},
		{2, false, Weights{0.70, 0.30}},
		{3, false, Weights{0.50, 0.50}},
		{4, false, Weights{0.50, 0.50}},
		{5, false, Weights{0.30, 0.70}},
		{6, false, Weights{0.30, 0.70}},
		{1, true, Weights{0.80, 0.20}},
		{4, true, Weights{0.55, 0.45}},
		{6, true, Weights{0.35, 0.65}},
	}
	for _, tt := range tests {
		got := Schedule(tt.turn, tt.informed)
		assert.Equal(t, tt.want, got, "turn %d informed %v", tt.turn, tt.informed)
		assert.InDelta(t, 1.0, got.Bayesian+got.External, 1e-12)
	}
}

func fuse(w Weights, b, x pattern.Distribution) pattern.Distribution {
	out := make(pattern.Distribution, pattern.NumPatterns)
	for _, p := range pattern.All {
		out[p] = w.Bayesian*b[p] + w.External*x[p]
	}
	return out.Normalize()
}

func TestEstimate_FusionWeightsByTurn(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockClassifier(ctrl)
	extDist := pattern.Distribution{pattern.A: 0.1, pattern.B: 0.1, pattern.C: 0.5, pattern.D: 0.1, pattern.E: 0.1, pattern.F: 0.1}
	ext.EXPECT().Classify(gomock.Any(), passive).Return(extDist, nil).Times(6)

	e := NewEstimator(bayes.Uniform(), nil, WithExternal(ext, time.Second), WithClock(fixedClock()))

	for turn := 1; turn <= 6; turn++ {
		est, err := e.Estimate(context.Background(), passive)
		require.NoError(t, err)

		assert.Equal(t, turn, est.Turn)
		assert.Equal(t, MethodEnsemble, est.Method)
		assert.Equal(t, Schedule(turn, false), est.Weights)

		want := fuse(est.Weights, est.Bayesian.Distribution, extDist)
		if diff := cmp.Diff(want, est.Fused.Distribution, approx); diff != "" {
			t.Errorf("turn %d fused distribution (-want +got):\n%s", turn, diff)
		}
		assert.InDelta(t, 1.0, est.Fused.Distribution.Sum(), 1e-9)
	}
	assert.Equal(t, 6, e.Turn())
	assert.Len(t, e.History(), 6)
}

func TestEstimate_InformedPriorWeights(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockClassifier(ctrl)
	ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(pattern.Uniform(), nil)

	e := NewEstimator(bayes.FromAssessment(pattern.F), nil, WithExternal(ext, 0))
	est, err := e.Estimate(context.Background(), passive)
	require.NoError(t, err)
	assert.Equal(t, Weights{0.80, 0.20}, est.Weights)
}

func TestEstimate_ExternalFailureFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply pattern.Distribution
		err   error
	}{
		{"error", nil, external.ErrUnavailable},
		{"mass above one", pattern.Distribution{pattern.A: 0.9, pattern.B: 0.9}, nil},
		{"unknown label", pattern.Distribution{"Z": 1}, nil},
		{"empty", pattern.Distribution{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ext := mocks.NewMockClassifier(ctrl)
			ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(tt.reply, tt.err)

			core, logs := observer.New(zapcore.WarnLevel)
			e := NewEstimator(bayes.Uniform(), nil, WithExternal(ext, time.Second), WithLogger(zap.New(core)))

			est, err := e.Estimate(context.Background(), passive)
			require.NoError(t, err)
			assert.Equal(t, MethodBayesianOnly, est.Method)
			assert.Equal(t, BayesianOnly, est.Weights)
			assert.Nil(t, est.External)
			if diff := cmp.Diff(est.Bayesian.Distribution, est.Fused.Distribution, approx); diff != "" {
				t.Errorf("fused should equal bayesian (-bayes +fused):\n%s", diff)
			}
			assert.Equal(t, 1, logs.Len())
		})
	}
}

func TestEstimate_ExternalTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockClassifier(ctrl)
	ext.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ pattern.Signals) (pattern.Distribution, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	e := NewEstimator(bayes.Uniform(), nil, WithExternal(ext, 10*time.Millisecond))
	est, err := e.Estimate(context.Background(), passive)
	require.NoError(t, err)
	assert.Equal(t, MethodBayesianOnly, est.Method)
	assert.Equal(t, 1, e.Turn())
}

func TestEstimate_CancelledTurnIsDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockClassifier(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	ext.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(cctx context.Context, _ pattern.Signals) (pattern.Distribution, error) {
			cancel() // the session ends while the call is in flight
			<-cctx.Done()
			return nil, cctx.Err()
		})

	sink := &recordingSink{}
	w := NewWorker(sink, 4, nil)
	e := NewEstimator(bayes.Uniform(), nil, WithExternal(ext, time.Second), WithWorker(w))

	_, err := e.Estimate(ctx, passive)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Turn())
	assert.Empty(t, e.History())

	w.Close()
	assert.Empty(t, sink.all())

	// The session can continue with a live context.
	ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(pattern.Uniform(), nil)
	est, err := e.Estimate(context.Background(), passive)
	require.NoError(t, err)
	assert.Equal(t, 1, est.Turn)
}

func TestEstimate_RejectsMalformedSignals(t *testing.T) {
	e := NewEstimator(bayes.Uniform(), nil)
	bad := passive
	bad.IterationRate = -0.5
	_, err := e.Estimate(context.Background(), bad)
	assert.ErrorIs(t, err, pattern.ErrMalformedInput)
	assert.Equal(t, 0, e.Turn())
}

// From turn 5 the external side carries 0.7 of the mass, so a one-hot
// external reply decides the fused top pattern.
func runExternalSequence(t *testing.T, tops []pattern.Pattern) []Estimate {
	t.Helper()
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockClassifier(ctrl)
	var calls []any
	for _, p := range tops {
		calls = append(calls, ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(pattern.Distribution{p: 1}, nil))
	}
	gomock.InOrder(calls...)

	e := NewEstimator(bayes.Uniform(), nil, WithExternal(ext, time.Second), WithClock(fixedClock()))
	var out []Estimate
	for range tops {
		est, err := e.Estimate(context.Background(), passive)
		require.NoError(t, err)
		out = append(out, est)
	}
	return out
}

func TestEstimate_UnstableWindowDampsConfidence(t *testing.T) {
	tops := []pattern.Pattern{pattern.F, pattern.F, pattern.F, pattern.F, pattern.A, pattern.F, pattern.A, pattern.F, pattern.A, pattern.F}
	ests := runExternalSequence(t, tops)

	last := ests[len(ests)-1]
	require.False(t, last.Stability.IsStable)
	assert.GreaterOrEqual(t, last.Stability.RecentOscillations, 2)

	_, p1, _, p2 := last.Fused.Distribution.Top()
	assert.InDelta(t, (p1-p2)*UnstableDamping, last.Fused.Confidence, 1e-9)

	for i, est := range ests[4:] {
		assert.Equal(t, tops[i+4], est.Fused.Pattern, "turn %d", est.Turn)
	}
}

func TestEstimate_StableWindowKeepsConfidence(t *testing.T) {
	tops := make([]pattern.Pattern, 8)
	for i := range tops {
		tops[i] = pattern.F
	}
	ests := runExternalSequence(t, tops)

	for _, est := range ests {
		assert.True(t, est.Stability.IsStable, "turn %d", est.Turn)
		_, p1, _, p2 := est.Fused.Distribution.Top()
		assert.InDelta(t, p1-p2, est.Fused.Confidence, 1e-9)
		assert.Equal(t, pattern.F, est.Fused.Pattern)
	}
	last := ests[len(ests)-1]
	assert.False(t, last.Fused.NeedMoreData)
	assert.NotEqual(t, stability.TrendDecreasing, last.Stability.Trend)
}

// flipTurns runs three ambiguous turns whose external replies alternate
// D, E, D, leaving the window unstable at turn 3.
func flipTurns(t *testing.T, exploration float64) Estimate {
	t.Helper()
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockClassifier(ctrl)
	gomock.InOrder(
		ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(pattern.Distribution{pattern.D: 1}, nil),
		ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(pattern.Distribution{pattern.E: 1}, nil),
		ext.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(pattern.Distribution{pattern.D: 1}, nil),
	)
	th := thresholds.Defaults()
	th[thresholds.HybridExploration] = exploration
	e := NewEstimator(bayes.Uniform(), thresholds.Static(th), WithExternal(ext, time.Second), WithClock(fixedClock()))

	var est Estimate
	for i := 0; i < 3; i++ {
		var err error
		est, err = e.Estimate(context.Background(), uniformSignals(0.9))
		require.NoError(t, err)
	}
	return est
}

func TestEstimate_NeedMoreDataUsesUndampedConfidence(t *testing.T) {
	// Turn 3 fuses to D with an undamped margin of about 0.45, damped to
	// about 0.36.
	est := flipTurns(t, 0.40)
	require.Equal(t, 3, est.Turn)
	require.False(t, est.Stability.IsStable)
	assert.Equal(t, pattern.D, est.Fused.Pattern)

	_, p1, _, p2 := est.Fused.Distribution.Top()
	require.Greater(t, p1-p2, 0.40)
	require.Less(t, est.Fused.Confidence, 0.40)
	assert.False(t, est.Fused.NeedMoreData)

	assert.True(t, flipTurns(t, 0.50).Fused.NeedMoreData)
}

// A user who keeps pasting questions and accepting answers settles on F
// without any external classifier.
func TestEstimate_PassiveUserScenario(t *testing.T) {
	sink := &recordingSink{}
	w := NewWorker(sink, 16, nil)
	e := NewEstimator(bayes.Uniform(), nil, WithWorker(w), WithSession("s-1", "u-1"), WithClock(fixedClock()))

	var last Estimate
	for i := 0; i < 6; i++ {
		est, err := e.Estimate(context.Background(), passive)
		require.NoError(t, err)
		assert.Equal(t, MethodBayesianOnly, est.Method)
		last = est
	}
	w.Close()

	assert.Equal(t, pattern.F, last.Fused.Pattern)
	assert.True(t, last.Stability.IsStable)
	assert.Zero(t, last.Stability.Oscillations)
	assert.Greater(t, last.Fused.Probability, 0.9)

	snaps := sink.all()
	require.Len(t, snaps, 6)
	for i, s := range snaps {
		assert.Equal(t, i+1, s.Turn)
		assert.Equal(t, "s-1", s.SessionID)
		assert.Equal(t, "u-1", s.UserID)
		assert.Equal(t, pattern.F, s.Pattern)
	}
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
	block chan struct{}
}

func (r *recordingSink) SaveSnapshot(ctx context.Context, s Snapshot) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recordingSink) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestWorker_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	w := NewWorker(sink, 1, nil)

	accepted := 0
	for i := 1; i <= 5; i++ {
		if w.Post(Snapshot{Turn: i}) {
			accepted++
		}
	}
	// One snapshot may be in the sink, one in the queue.
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, accepted, 1)

	close(sink.block)
	w.Close()
	assert.Len(t, sink.all(), accepted)
	assert.False(t, w.Post(Snapshot{Turn: 6}))
}

func TestWorker_SinkErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &recordingSink{err: errors.New("disk full")}
	w := NewWorker(sink, 4, zap.New(core))

	require.True(t, w.Post(Snapshot{SessionID: "s", Turn: 1}))
	w.Close()
	w.Close()

	entries := logs.FilterMessage("save stability snapshot").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
}
