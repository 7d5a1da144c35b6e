package bayes

import "github.com/abhisek/mca/internal/pattern"

// PriorSource records where a prior came from.
type PriorSource string

const (
	SourceUniform    PriorSource = "uniform"
	SourceAssessment PriorSource = "assessment"
	SourceHistory    PriorSource = "history"
)

// Prior is a starting distribution with provenance.
type Prior struct {
	Dist   pattern.Distribution
	Source PriorSource
}

// Uniform returns the uninformed prior.
func Uniform() Prior {
	return Prior{Dist: pattern.Uniform(), Source: SourceUniform}
}

// FromAssessment puts 0.5 on the assessed pattern and 0.1 on each other.
// An invalid pattern yields the uniform prior.
func FromAssessment(p pattern.Pattern) Prior {
	if !p.Valid() {
		return Uniform()
	}
	d := make(pattern.Distribution, pattern.NumPatterns)
	for _, q := range pattern.All {
		d[q] = 0.1
	}
	d[p] = 0.5
	return Prior{Dist: d, Source: SourceAssessment}
}

// FromHistory builds a Laplace-smoothed frequency prior from previously
// confirmed patterns. Unknown labels are skipped; an empty history yields
// the uniform prior.
func FromHistory(history []pattern.Pattern) Prior {
	counts := make(pattern.Distribution, pattern.NumPatterns)
	n := 0
	for _, p := range history {
		if p.Valid() {
			counts[p]++
			n++
		}
	}
	if n == 0 {
		return Uniform()
	}
	d := make(pattern.Distribution, pattern.NumPatterns)
	for _, p := range pattern.All {
		d[p] = (counts[p] + 1) / float64(n+pattern.NumPatterns)
	}
	return Prior{Dist: d, Source: SourceHistory}
}

// Informed reports whether the prior carries user-specific information.
func (p Prior) Informed() bool {
	return p.Source == SourceAssessment || p.Source == SourceHistory
}
