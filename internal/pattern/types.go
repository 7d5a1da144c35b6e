package pattern

import (
	"fmt"
	"strings"
)

// Pattern is one of the six collaboration archetypes.
type Pattern string

const (
	A Pattern = "A" // Strategic control
	B Pattern = "B" // Iterative refinement
	C Pattern = "C" // Context-adaptive
	D Pattern = "D" // Deep verification
	E Pattern = "E" // Collaborative learning
	F Pattern = "F" // Passive over-reliance
)

// NumPatterns is the size of the label space.
const NumPatterns = 6

// All lists every pattern in canonical order. Iteration over distributions
// always follows this order so ties resolve the same way on every run.
var All = [NumPatterns]Pattern{A, B, C, D, E, F}

var patternNames = map[Pattern]string{
	A: "strategic control",
	B: "iterative refinement",
	C: "context-adaptive",
	D: "deep verification",
	E: "collaborative learning",
	F: "passive over-reliance",
}

// Valid reports whether p is one of A–F.
func (p Pattern) Valid() bool {
	_, ok := patternNames[p]
	return ok
}

// Name returns the human-readable archetype name.
func (p Pattern) Name() string {
	if n, ok := patternNames[p]; ok {
		return n
	}
	return "unknown"
}

// Index returns the position of p in All, or -1.
func (p Pattern) Index() int {
	for i, q := range All {
		if q == p {
			return i
		}
	}
	return -1
}

func (p Pattern) String() string { return string(p) }

// Parse converts a label such as "f" or "F" into a Pattern.
func Parse(s string) (Pattern, error) {
	p := Pattern(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &InputError{Field: "pattern", Value: s, Err: fmt.Errorf("unknown pattern label")}
	}
	return p, nil
}
