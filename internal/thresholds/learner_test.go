package thresholds

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mca/internal/pattern"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLearner(cfg Config, opts ...Option) *Learner {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewLearner(cfg, opts...)
}

func entry(pred, actual pattern.Pattern, accurate bool) FeedbackEntry {
	return FeedbackEntry{UserID: "u1", Predicted: pred, Actual: actual, Accurate: accurate}
}

// feed collects n copies of e and returns the last non-nil version.
func feed(t *testing.T, l *Learner, n int, e FeedbackEntry) *AlgorithmVersion {
	t.Helper()
	var last *AlgorithmVersion
	for i := 0; i < n; i++ {
		e.ID = fmt.Sprintf("fb-%d-%d", l.Total(), i)
		v, err := l.CollectFeedback(e)
		require.NoError(t, err)
		if v != nil {
			last = v
		}
	}
	return last
}

func TestLearner_WidensFOnLowAccuracy(t *testing.T) {
	l := newTestLearner(DefaultConfig())

	for i := 0; i < 9; i++ {
		v, err := l.CollectFeedback(entry(pattern.F, pattern.B, false))
		require.NoError(t, err)
		require.Nil(t, v, "analysis must wait for the 10th entry")
	}
	v, err := l.CollectFeedback(entry(pattern.F, pattern.B, false))
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, 1, v.Version)
	assert.Equal(t, fixedNow, v.Timestamp)
	require.Contains(t, v.Changes, FQueryRatio)
	assert.InDelta(t, 0.70, v.Changes[FQueryRatio].From, 1e-9)
	assert.InDelta(t, 0.60, v.Changes[FQueryRatio].To, 1e-9)
	assert.Len(t, v.Changes, 1)
	assert.InDelta(t, 0.60, v.Thresholds[FQueryRatio], 1e-9)
	assert.InDelta(t, 0.30, v.Thresholds[FVerification], 1e-9)
	assert.Contains(t, v.Description, "widen F")

	assert.Equal(t, 10, v.Metrics.Total)
	assert.Zero(t, v.Metrics.Accuracy)
	assert.InDelta(t, 1.0/6, v.Metrics.Coverage, 1e-9)
	assert.InDelta(t, 1.0, v.Metrics.FalsePositiveRate, 1e-9)

	assert.InDelta(t, 0.60, l.Current()[FQueryRatio], 1e-9)
	assert.Len(t, l.Versions(), 1)
}

func TestLearner_SharpensAOnHighAccuracy(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	v := feed(t, l, 10, entry(pattern.A, pattern.A, true))
	require.NotNil(t, v)
	assert.InDelta(t, 0.70, v.Changes[AVerification].From, 1e-9)
	assert.InDelta(t, 0.72, v.Changes[AVerification].To, 1e-9)
	assert.Contains(t, v.Description, "sharpen A")
}

func TestLearner_HybridGroup(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	e := entry(pattern.C, pattern.D, false)
	e.Context = HybridContext
	v := feed(t, l, 10, e)
	require.NotNil(t, v)
	assert.InDelta(t, 0.10, v.Changes[HybridExploration].To, 1e-9)
	assert.NotContains(t, v.Changes, FQueryRatio)
}

func TestLearner_NoChangeInsideBand(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	assert.Nil(t, feed(t, l, 9, entry(pattern.F, pattern.F, true)))
	v, err := l.CollectFeedback(entry(pattern.F, pattern.C, false)) // 9/10 accurate
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Empty(t, l.Versions())
	assert.Equal(t, Defaults(), l.Current())
}

func TestLearner_SmallGroupIgnored(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	feed(t, l, 5, entry(pattern.F, pattern.B, false))
	v := feed(t, l, 5, entry(pattern.C, pattern.C, true))
	assert.Nil(t, v)
}

func TestLearner_ClampsAndDropsTinyNudges(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	feed(t, l, 10, entry(pattern.F, pattern.B, false))
	for i := 0; i < 6; i++ {
		require.NotNil(t, l.AnalyzeAndAdapt(), "pass %d", i)
	}
	assert.InDelta(t, 0.0, l.Current()[FQueryRatio], 1e-9)
	assert.Nil(t, l.AnalyzeAndAdapt(), "a nudge below zero must be clamped away")
	assert.Len(t, l.Versions(), 7)

	for i, v := range l.Versions() {
		assert.Equal(t, i+1, v.Version)
	}
}

func TestLearner_RejectsMalformedFeedback(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	_, err := l.CollectFeedback(FeedbackEntry{Predicted: "X", Actual: pattern.A})
	assert.ErrorIs(t, err, pattern.ErrMalformedInput)
	_, err = l.CollectFeedback(FeedbackEntry{Predicted: pattern.A})
	assert.ErrorIs(t, err, pattern.ErrMalformedInput)
	assert.Zero(t, l.Total())
}

type recordingArchiver struct {
	mu      sync.Mutex
	entries []FeedbackEntry
}

func (a *recordingArchiver) Archive(entries []FeedbackEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
	return nil
}

func TestLearner_RetentionArchivesAndKeepsAggregates(t *testing.T) {
	arch := &recordingArchiver{}
	l := newTestLearner(Config{Retention: 5}, WithArchiver(arch))
	for i := 0; i < 8; i++ {
		e := entry(pattern.B, pattern.B, i%2 == 0)
		e.ID = fmt.Sprintf("e%d", i)
		_, err := l.CollectFeedback(e)
		require.NoError(t, err)
	}

	require.Len(t, arch.entries, 3)
	assert.Equal(t, "e0", arch.entries[0].ID)
	assert.Equal(t, "e2", arch.entries[2].ID)

	r := l.Report()
	assert.Equal(t, 8, r.Metrics.Total)
	assert.InDelta(t, 0.5, r.Metrics.Accuracy, 1e-9)
}

func TestLearner_Restore(t *testing.T) {
	v1 := AlgorithmVersion{Version: 1, Thresholds: Set{FQueryRatio: 0.6}}
	v2 := AlgorithmVersion{Version: 2, Thresholds: Set{FQueryRatio: 0.5, AVerification: 0.72}}

	var fb []FeedbackEntry
	for i := 0; i < 12; i++ {
		fb = append(fb, entry(pattern.F, pattern.B, false))
	}

	l := newTestLearner(DefaultConfig())
	require.NoError(t, l.Restore([]AlgorithmVersion{v2, v1}, fb))

	cur := l.Current()
	assert.InDelta(t, 0.5, cur[FQueryRatio], 1e-9)
	assert.InDelta(t, 0.72, cur[AVerification], 1e-9)
	assert.InDelta(t, 0.15, cur[HybridExploration], 1e-9, "missing names fall back to defaults")
	assert.Equal(t, 12, l.Total())

	v := feed(t, l, 8, entry(pattern.F, pattern.B, false))
	require.NotNil(t, v)
	assert.Equal(t, 3, v.Version)
	assert.InDelta(t, 0.4, v.Changes[FQueryRatio].To, 1e-9)

	assert.Error(t, l.Restore(nil, []FeedbackEntry{{Predicted: "nope", Actual: pattern.A}}))
}

func TestLearner_ConcurrentFeedback(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, _ = l.CollectFeedback(entry(pattern.F, pattern.C, false))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, l.Total())
	versions := l.Versions()
	assert.Len(t, versions, 7) // 0.7 down to 0.0 in steps of 0.1
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i].Version, versions[i-1].Version)
	}
}

func TestReport_Empty(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	r := l.Report()
	assert.True(t, r.Empty)
	assert.Contains(t, r.Message, "Insufficient feedback")
	assert.Equal(t, Defaults(), r.Thresholds)
	assert.Empty(t, r.RecentVersions)

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, r))
	assert.Contains(t, buf.String(), "Insufficient feedback")
	assert.Contains(t, buf.String(), FQueryRatio)
}

func TestReport_Populated(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	feed(t, l, 10, entry(pattern.F, pattern.B, false))
	feed(t, l, 4, entry(pattern.A, pattern.A, true))
	feed(t, l, 2, entry(pattern.D, pattern.D, true))

	r := l.Report()
	require.False(t, r.Empty)
	require.NotNil(t, r.Best)
	require.NotNil(t, r.Worst)
	assert.Equal(t, pattern.A, r.Best.Pattern)
	assert.Equal(t, pattern.F, r.Worst.Pattern)
	assert.Len(t, r.RecentVersions, 1)

	// Last 10 are 4 wrong + 6 right; all 16 are 6 right.
	assert.InDelta(t, 0.6, r.ShortAccuracy, 1e-9)
	assert.InDelta(t, 6.0/16, r.LongAccuracy, 1e-9)
	assert.Equal(t, TrendImproving, r.Trend)

	require.NotEmpty(t, r.Recommendations)
	assert.Contains(t, r.Recommendations[0], "Collect more feedback")

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "Recent versions")
	assert.Contains(t, out, "0.700 -> 0.600")
	assert.Contains(t, out, "Recommendations")
}

func TestSet(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{AVerification, FQueryRatio, FVerification, HybridExploration}, s.Names())
	assert.InDelta(t, 0.7, Set{}.Get(FQueryRatio), 1e-9)

	c := s.Clone()
	c[FQueryRatio] = 2
	assert.InDelta(t, 0.7, s[FQueryRatio], 1e-9)
	assert.Error(t, c.Validate())

	st := Static(s)
	got := st.Current()
	got[FQueryRatio] = 0
	assert.InDelta(t, 0.7, st.Current()[FQueryRatio], 1e-9)
}
