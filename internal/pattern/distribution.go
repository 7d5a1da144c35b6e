package pattern

import (
	"fmt"
	"math"
)

// SumTolerance is the slack allowed when checking that a distribution sums to 1.
const SumTolerance = 1e-6

// Distribution is a probability mass over the six patterns. Missing keys
// read as zero.
type Distribution map[Pattern]float64

// Uniform returns 1/6 on every label.
func Uniform() Distribution {
	d := make(Distribution, NumPatterns)
	for _, p := range All {
		d[p] = 1.0 / NumPatterns
	}
	return d
}

// Clone returns an independent copy with every label present.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, NumPatterns)
	for _, p := range All {
		out[p] = d[p]
	}
	return out
}

// Sum adds the mass over the six labels. Keys outside A–F are ignored.
func (d Distribution) Sum() float64 {
	var s float64
	for _, p := range All {
		s += d[p]
	}
	return s
}

// Normalize rescales the mass to sum to 1. A zero or non-finite total
// yields the uniform distribution.
func (d Distribution) Normalize() Distribution {
	s := d.Sum()
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return Uniform()
	}
	out := make(Distribution, NumPatterns)
	for _, p := range All {
		out[p] = d[p] / s
	}
	return out
}

// Top returns the most and second-most likely patterns with their mass.
// Ties resolve in All order.
func (d Distribution) Top() (first Pattern, p1 float64, second Pattern, p2 float64) {
	first, second = All[0], All[1]
	p1, p2 = math.Inf(-1), math.Inf(-1)
	for _, p := range All {
		v := d[p]
		switch {
		case v > p1:
			second, p2 = first, p1
			first, p1 = p, v
		case v > p2:
			second, p2 = p, v
		}
	}
	return first, p1, second, p2
}

// Validate checks that the distribution covers only A–F with values in
// [0,1] and a positive total no larger than 1 (within tolerance).
func (d Distribution) Validate() error {
	for k, v := range d {
		if !k.Valid() {
			return &InputError{Field: "distribution", Value: string(k), Err: fmt.Errorf("unknown label")}
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return &InputError{Field: "distribution." + string(k), Value: v, Err: fmt.Errorf("probability must be in [0,1]")}
		}
	}
	s := d.Sum()
	if s <= 0 || s > 1+1e-3 {
		return &InputError{Field: "distribution", Value: s, Err: fmt.Errorf("total mass must be in (0,1]")}
	}
	return nil
}
