package pattern

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Pattern
		wantErr bool
	}{
		{"A", A, false},
		{" f ", F, false},
		{"c", C, false},
		{"G", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPattern_Index(t *testing.T) {
	for i, p := range All {
		if p.Index() != i {
			t.Errorf("%s.Index() = %d, want %d", p, p.Index(), i)
		}
	}
	if Pattern("Z").Index() != -1 {
		t.Error("unknown pattern should have index -1")
	}
}

func TestScores_TotalAndValidate(t *testing.T) {
	s := ScoresFromVector([12]int{3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3})
	if s.Total() != MaxTotal {
		t.Errorf("got total %d, want %d", s.Total(), MaxTotal)
	}
	require.NoError(t, s.Validate())

	s.M2 = 4
	err := s.Validate()
	require.Error(t, err)
	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "m2", ie.Field)
	assert.Equal(t, 3, s.Clamp().M2)
}

func TestScoresFromMap(t *testing.T) {
	s, err := ScoresFromMap(map[string]int{"P1": 2, "e3": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, s.P1)
	assert.Equal(t, 1, s.E3)

	_, err = ScoresFromMap(map[string]int{"x9": 1})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = ScoresFromMap(map[string]int{"p1": -1})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestSignals_Validate(t *testing.T) {
	require.NoError(t, Signals{VerificationRate: 1}.Validate())
	assert.ErrorIs(t, Signals{VerificationRate: 1.2}.Validate(), ErrMalformedInput)
	assert.ErrorIs(t, Signals{ToolSwitching: -0.1}.Validate(), ErrMalformedInput)
	assert.ErrorIs(t, Signals{GoalClarity: math.NaN()}.Validate(), ErrMalformedInput)
}

func TestSignals_QueryRatio(t *testing.T) {
	s := Signals{TaskDecomposition: 0.2, GoalClarity: 0.2, StrategyPlanning: 0.2, RoleDefinition: 0.2}
	assert.InDelta(t, 0.8, s.QueryRatio(), 1e-9)
	assert.InDelta(t, 1.0, Signals{}.QueryRatio(), 1e-9)
}

func TestSignals_RubricScale(t *testing.T) {
	m := Signals{TaskDecomposition: 0.5, ToolSwitching: 1}.RubricScale()
	assert.Len(t, m, 12)
	assert.InDelta(t, 1.5, m["p1"], 1e-9)
	assert.InDelta(t, 3.0, m["r2"], 1e-9)
}

func TestDistribution_Uniform(t *testing.T) {
	d := Uniform()
	assert.InDelta(t, 1.0, d.Sum(), SumTolerance)
	for _, p := range All {
		assert.InDelta(t, 1.0/6, d[p], 1e-12)
	}
}

func TestDistribution_Normalize(t *testing.T) {
	d := Distribution{A: 2, B: 2}.Normalize()
	assert.InDelta(t, 0.5, d[A], 1e-12)
	assert.InDelta(t, 0.5, d[B], 1e-12)
	assert.Zero(t, d[F])

	z := Distribution{}.Normalize()
	assert.InDelta(t, 1.0/6, z[C], 1e-12)
}

func TestDistribution_TopTieBreak(t *testing.T) {
	// Equal mass: the first label in A..F order wins.
	first, p1, second, p2 := Distribution{C: 0.4, B: 0.4, F: 0.2}.Top()
	assert.Equal(t, B, first)
	assert.Equal(t, C, second)
	assert.Equal(t, p1, p2)

	first, _, _, _ = Uniform().Top()
	assert.Equal(t, A, first)
}

func TestDistribution_Validate(t *testing.T) {
	require.NoError(t, Uniform().Validate())
	assert.ErrorIs(t, Distribution{"Q": 1}.Validate(), ErrMalformedInput)
	assert.ErrorIs(t, Distribution{A: 1.5}.Validate(), ErrMalformedInput)
	assert.ErrorIs(t, Distribution{A: 0.8, B: 0.8}.Validate(), ErrMalformedInput)
	assert.ErrorIs(t, Distribution{}.Validate(), ErrMalformedInput)
}

func TestNewEstimate(t *testing.T) {
	dist := Distribution{A: 0.1, B: 0.1, C: 0.1, D: 0.1, E: 0.1, F: 0.5}
	ev := []string{"query ratio high"}
	e := NewEstimate(dist, ev)
	assert.Equal(t, F, e.Pattern)
	assert.InDelta(t, 0.5, e.Probability, 1e-12)
	assert.InDelta(t, 0.4, e.Confidence, 1e-12)

	// The estimate owns its copies.
	dist[F] = 0
	ev[0] = "changed"
	assert.InDelta(t, 0.5, e.Distribution[F], 1e-12)
	assert.Equal(t, "query ratio high", e.Evidence[0])

	d := e.WithConfidence(0.1)
	assert.InDelta(t, 0.1, d.Confidence, 1e-12)
	assert.InDelta(t, 0.4, e.Confidence, 1e-12)
}
