package thresholds

import (
	"fmt"
	"sort"
	"strings"
)

// Threshold names.
const (
	FQueryRatio       = "F.queryRatio"
	FVerification     = "F.verification"
	AVerification     = "A.verification"
	HybridExploration = "hybrid.exploration"
)

// Set is a named collection of decision thresholds, each in [0,1].
// A Set handed out by the learner is a copy; mutate it freely.
type Set map[string]float64

// Defaults returns the initial threshold values.
func Defaults() Set {
	return Set{
		FQueryRatio:       0.70,
		FVerification:     0.30,
		AVerification:     0.70,
		HybridExploration: 0.15,
	}
}

// Get returns the named threshold, falling back to its default.
func (s Set) Get(name string) float64 {
	if v, ok := s[name]; ok {
		return v
	}
	return Defaults()[name]
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the threshold names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate rejects values outside [0,1].
func (s Set) Validate() error {
	for _, k := range s.Names() {
		if v := s[k]; v < 0 || v > 1 || v != v {
			return fmt.Errorf("threshold %s=%v out of range [0,1]", k, v)
		}
	}
	return nil
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, k := range s.Names() {
		parts = append(parts, fmt.Sprintf("%s=%.3f", k, s[k]))
	}
	return strings.Join(parts, " ")
}

// Source supplies the thresholds currently in force.
type Source interface {
	Current() Set
}

// Static is a Source that always returns the same set.
type Static Set

// Current implements Source.
func (s Static) Current() Set { return Set(s).Clone() }
