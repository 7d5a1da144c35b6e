package pattern

import (
	"fmt"
	"strings"
)

// MaxScore is the top of the 0–3 rubric scale.
const MaxScore = 3

// MaxTotal is the largest possible Scores.Total().
const MaxTotal = 12 * MaxScore

// DimensionKeys lists the twelve subprocess dimensions in vector order.
var DimensionKeys = [12]string{"p1", "p2", "p3", "p4", "m1", "m2", "m3", "e1", "e2", "e3", "r1", "r2"}

// DimensionNames maps each key to the rubric dimension it rates.
var DimensionNames = map[string]string{
	"p1": "task understanding",
	"p2": "goal setting",
	"p3": "strategy planning",
	"p4": "role definition",
	"m1": "process tracking",
	"m2": "quality checking",
	"m3": "trust calibration",
	"e1": "quality evaluation",
	"e2": "risk assessment",
	"e3": "capability judgment",
	"r1": "strategy adjustment",
	"r2": "tool switching",
}

// Scores holds the twelve rubric ratings, each in [0,3].
type Scores struct {
	P1 int `json:"p1" yaml:"p1"` // planning
	P2 int `json:"p2" yaml:"p2"`
	P3 int `json:"p3" yaml:"p3"`
	P4 int `json:"p4" yaml:"p4"`
	M1 int `json:"m1" yaml:"m1"` // monitoring
	M2 int `json:"m2" yaml:"m2"`
	M3 int `json:"m3" yaml:"m3"`
	E1 int `json:"e1" yaml:"e1"` // evaluation
	E2 int `json:"e2" yaml:"e2"`
	E3 int `json:"e3" yaml:"e3"`
	R1 int `json:"r1" yaml:"r1"` // regulation
	R2 int `json:"r2" yaml:"r2"`
}

// Vector returns the scores in DimensionKeys order.
func (s Scores) Vector() [12]int {
	return [12]int{s.P1, s.P2, s.P3, s.P4, s.M1, s.M2, s.M3, s.E1, s.E2, s.E3, s.R1, s.R2}
}

// Total is the sum of all twelve scores.
func (s Scores) Total() int {
	total := 0
	for _, v := range s.Vector() {
		total += v
	}
	return total
}

// Validate returns an *InputError for the first field outside [0,3].
func (s Scores) Validate() error {
	for i, v := range s.Vector() {
		if v < 0 || v > MaxScore {
			return &InputError{Field: DimensionKeys[i], Value: v, Err: fmt.Errorf("score must be in [0,%d]", MaxScore)}
		}
	}
	return nil
}

// Clamp forces every field into [0,3].
func (s Scores) Clamp() Scores {
	v := s.Vector()
	for i := range v {
		v[i] = clampInt(v[i], 0, MaxScore)
	}
	return ScoresFromVector(v)
}

// ScoresFromVector builds Scores from a DimensionKeys-ordered array.
func ScoresFromVector(v [12]int) Scores {
	return Scores{
		P1: v[0], P2: v[1], P3: v[2], P4: v[3],
		M1: v[4], M2: v[5], M3: v[6],
		E1: v[7], E2: v[8], E3: v[9],
		R1: v[10], R2: v[11],
	}
}

// ScoresFromMap parses {"p1": 2, ...}. Keys are case-insensitive; missing
// keys are zero, unknown keys and out-of-range values are rejected.
func ScoresFromMap(m map[string]int) (Scores, error) {
	var v [12]int
	for k, val := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		idx := dimensionIndex(key)
		if idx < 0 {
			return Scores{}, &InputError{Field: k, Value: val, Err: fmt.Errorf("unknown dimension")}
		}
		v[idx] = val
	}
	s := ScoresFromVector(v)
	if err := s.Validate(); err != nil {
		return Scores{}, err
	}
	return s, nil
}

// Map returns the scores keyed by dimension.
func (s Scores) Map() map[string]int {
	v := s.Vector()
	out := make(map[string]int, len(v))
	for i, k := range DimensionKeys {
		out[k] = v[i]
	}
	return out
}

func (s Scores) String() string {
	v := s.Vector()
	parts := make([]string, 0, len(v))
	for i, k := range DimensionKeys {
		parts = append(parts, fmt.Sprintf("%s=%d", strings.ToUpper(k), v[i]))
	}
	return fmt.Sprintf("%s (total=%d)", strings.Join(parts, " "), s.Total())
}

func dimensionIndex(key string) int {
	for i, k := range DimensionKeys {
		if k == key {
			return i
		}
	}
	return -1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
