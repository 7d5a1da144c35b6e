package stability

import (
	"time"

	"github.com/abhisek/mca/internal/pattern"
)

const (
	// DefaultWindowSize is the number of turns kept per session.
	DefaultWindowSize = 10
	// RecentSize is the tail of the window used for the stability verdict.
	RecentSize = 5
	// MaxRecentOscillations is the most label changes the recent tail may
	// contain and still count as stable.
	MaxRecentOscillations = 1
	// SlopeTolerance is the confidence slope below which the trend is flat.
	SlopeTolerance = 0.02
)

// Trend is the direction of confidence over the window.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Entry is one classified turn.
type Entry struct {
	Pattern    pattern.Pattern `json:"pattern"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Metrics summarizes a window of entries.
type Metrics struct {
	IsStable           bool    `json:"is_stable"`
	Trend              Trend   `json:"trend"`
	Oscillations       int     `json:"oscillations"`
	RecentOscillations int     `json:"recent_oscillations"`
	Slope              float64 `json:"slope"`
	Samples            int     `json:"samples"`
}

// Analyze computes stability metrics. An empty or single-entry window is
// stable with a flat trend.
func Analyze(entries []Entry) Metrics {
	m := Metrics{Trend: TrendStable, Samples: len(entries)}
	m.Oscillations = changes(entries)

	recent := entries
	if len(recent) > RecentSize {
		recent = recent[len(recent)-RecentSize:]
	}
	m.RecentOscillations = changes(recent)
	m.IsStable = m.RecentOscillations <= MaxRecentOscillations

	m.Slope = slope(entries)
	switch {
	case m.Slope > SlopeTolerance:
		m.Trend = TrendIncreasing
	case m.Slope < -SlopeTolerance:
		m.Trend = TrendDecreasing
	}
	return m
}

func changes(entries []Entry) int {
	n := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Pattern != entries[i-1].Pattern {
			n++
		}
	}
	return n
}

// slope is the least-squares slope of confidence against turn index.
func slope(entries []Entry) float64 {
	n := float64(len(entries))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, e := range entries {
		x := float64(i)
		sumX += x
		sumY += e.Confidence
		sumXY += x * e.Confidence
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

// Window is a bounded FIFO of entries. Not safe for concurrent use.
type Window struct {
	size    int
	entries []Entry
}

// NewWindow returns a window holding at most size entries. A non-positive
// size uses DefaultWindowSize.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size, entries: make([]Entry, 0, size)}
}

// Push appends e, evicting the oldest entry when full.
func (w *Window) Push(e Entry) {
	if len(w.entries) == w.size {
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:len(w.entries)-1]
	}
	w.entries = append(w.entries, e)
}

// Entries returns a copy of the window, oldest first.
func (w *Window) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of entries held.
func (w *Window) Len() int { return len(w.entries) }

// Analyze runs Analyze over the window.
func (w *Window) Analyze() Metrics { return Analyze(w.entries) }
