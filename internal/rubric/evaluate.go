package rubric

import (
	"fmt"
	"strings"

	"github.com/abhisek/mca/internal/pattern"
)

// Sample is a labeled rubric row.
type Sample struct {
	Scores pattern.Scores
	Label  pattern.Pattern
}

// ClassMetrics holds one pattern's precision, recall and F1.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Evaluation summarizes a classifier run against labeled samples.
type Evaluation struct {
	Total     int
	Correct   int
	Accuracy  float64
	PerClass  map[pattern.Pattern]ClassMetrics
	Confusion [pattern.NumPatterns][pattern.NumPatterns]int // [actual][predicted]
}

// Evaluate classifies every sample with the default chain and tallies the
// confusion matrix.
func Evaluate(samples []Sample) Evaluation {
	ev := Evaluation{PerClass: make(map[pattern.Pattern]ClassMetrics, pattern.NumPatterns)}
	for _, s := range samples {
		if !s.Label.Valid() {
			continue
		}
		got := Classify(s.Scores)
		ev.Confusion[s.Label.Index()][got.Index()]++
		ev.Total++
		if got == s.Label {
			ev.Correct++
		}
	}
	if ev.Total > 0 {
		ev.Accuracy = float64(ev.Correct) / float64(ev.Total)
	}

	for i, p := range pattern.All {
		tp := ev.Confusion[i][i]
		var predicted, actual int
		for j := range pattern.All {
			predicted += ev.Confusion[j][i]
			actual += ev.Confusion[i][j]
		}
		m := ClassMetrics{Support: actual}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(tp) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		ev.PerClass[p] = m
	}
	return ev
}

// String renders the evaluation as a plain-text table.
func (ev Evaluation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy: %.1f%% (%d/%d)\n\n", ev.Accuracy*100, ev.Correct, ev.Total)
	fmt.Fprintf(&b, "%-8s %9s %7s %6s %8s\n", "Pattern", "Precision", "Recall", "F1", "Support")
	for _, p := range pattern.All {
		m := ev.PerClass[p]
		fmt.Fprintf(&b, "%-8s %9.2f %7.2f %6.2f %8d\n", p, m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("\nConfusion (rows=actual, cols=predicted)\n   ")
	for _, p := range pattern.All {
		fmt.Fprintf(&b, "%4s", p)
	}
	b.WriteString("\n")
	for i, p := range pattern.All {
		fmt.Fprintf(&b, "%-3s", p)
		for j := range pattern.All {
			fmt.Fprintf(&b, "%4d", ev.Confusion[i][j])
		}
		b.WriteString("\n")
	}
	return b.String()
}
