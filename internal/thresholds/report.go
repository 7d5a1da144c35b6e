package thresholds

import (
	"fmt"
	"io"
	"strings"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/ui/theme"
)

const (
	reportVersions    = 5
	shortWindow       = 10
	longWindow        = 50
	minPatternSamples = 3
	trendDelta        = 0.05
	enoughFeedback    = 50
)

// Trend directions for the short-versus-long accuracy comparison.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendFlat      = "stable"
)

// PatternAccuracy is lifetime accuracy for predictions of one pattern.
type PatternAccuracy struct {
	Pattern  pattern.Pattern
	Accuracy float64
	Samples  int
}

// Report is a diagnostics snapshot of the learner.
type Report struct {
	Empty           bool
	Message         string
	Thresholds      Set
	Metrics         Metrics
	RecentVersions  []AlgorithmVersion
	Best            *PatternAccuracy
	Worst           *PatternAccuracy
	ShortAccuracy   float64
	LongAccuracy    float64
	Trend           string
	Recommendations []string
}

// Report builds a diagnostics report. With no feedback it carries the
// current thresholds and an insufficient-feedback message.
func (l *Learner) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Report{Thresholds: l.current.Clone(), Trend: TrendFlat}
	start := len(l.versions) - reportVersions
	if start < 0 {
		start = 0
	}
	for _, v := range l.versions[start:] {
		r.RecentVersions = append(r.RecentVersions, v.clone())
	}

	if l.lifetime.total == 0 {
		r.Empty = true
		r.Message = "Insufficient feedback to generate a report"
		return r
	}

	r.Metrics = l.metricsLocked()
	for i, p := range pattern.All {
		t := l.byPredicted[i]
		if t.total < minPatternSamples {
			continue
		}
		pa := PatternAccuracy{Pattern: p, Accuracy: t.accuracy(), Samples: t.total}
		if r.Best == nil || pa.Accuracy > r.Best.Accuracy {
			best := pa
			r.Best = &best
		}
		if r.Worst == nil || pa.Accuracy < r.Worst.Accuracy {
			worst := pa
			r.Worst = &worst
		}
	}

	r.ShortAccuracy = tailAccuracy(l.entries, shortWindow)
	r.LongAccuracy = tailAccuracy(l.entries, longWindow)
	switch d := r.ShortAccuracy - r.LongAccuracy; {
	case d > trendDelta:
		r.Trend = TrendImproving
	case d < -trendDelta:
		r.Trend = TrendDeclining
	}

	r.Recommendations = recommend(r.Metrics)
	return r
}

func tailAccuracy(entries []FeedbackEntry, n int) float64 {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		return 0
	}
	correct := 0
	for _, e := range entries {
		if e.Accurate {
			correct++
		}
	}
	return float64(correct) / float64(len(entries))
}

func recommend(m Metrics) []string {
	var recs []string
	if m.Total < enoughFeedback {
		recs = append(recs, fmt.Sprintf("Collect more feedback: %d entries so far, %d recommended", m.Total, enoughFeedback))
	}
	if m.Accuracy < 0.70 {
		recs = append(recs, "Accuracy is below 70%: review pattern boundaries and signal quality")
	}
	if m.FalsePositiveRate > 0.20 {
		recs = append(recs, "False-positive rate above 20%: sharpen thresholds for over-predicted patterns")
	}
	if m.Coverage < 0.5 {
		recs = append(recs, "Fewer than half of the patterns have been observed: gather feedback from a wider set of users")
	}
	return recs
}

// RenderReport writes r as plain text with styled headings.
func RenderReport(w io.Writer, r Report) error {
	var b strings.Builder
	b.WriteString(theme.Heading.Render("Threshold learner report"))
	b.WriteString("\n\n")

	if r.Empty {
		b.WriteString(theme.Dim.Render(r.Message))
		b.WriteString("\n\n")
	}

	b.WriteString(theme.Heading.Render("Thresholds"))
	b.WriteString("\n")
	for _, name := range r.Thresholds.Names() {
		fmt.Fprintf(&b, "  %-20s %.3f\n", name, r.Thresholds[name])
	}

	if !r.Empty {
		b.WriteString("\n")
		b.WriteString(theme.Heading.Render("Performance"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Feedback entries     %d\n", r.Metrics.Total)
		fmt.Fprintf(&b, "  Accuracy             %.1f%%\n", r.Metrics.Accuracy*100)
		fmt.Fprintf(&b, "  Coverage             %.1f%%\n", r.Metrics.Coverage*100)
		fmt.Fprintf(&b, "  False-positive rate  %.1f%%\n", r.Metrics.FalsePositiveRate*100)
		fmt.Fprintf(&b, "  Trend                %s (last %d: %.1f%%, last %d: %.1f%%)\n",
			r.Trend, shortWindow, r.ShortAccuracy*100, longWindow, r.LongAccuracy*100)
		if r.Best != nil {
			fmt.Fprintf(&b, "  Best pattern         %s %.1f%% (n=%d)\n", r.Best.Pattern, r.Best.Accuracy*100, r.Best.Samples)
		}
		if r.Worst != nil {
			fmt.Fprintf(&b, "  Worst pattern        %s %.1f%% (n=%d)\n", r.Worst.Pattern, r.Worst.Accuracy*100, r.Worst.Samples)
		}
	}

	if len(r.RecentVersions) > 0 {
		b.WriteString("\n")
		b.WriteString(theme.Heading.Render("Recent versions"))
		b.WriteString("\n")
		for _, v := range r.RecentVersions {
			fmt.Fprintf(&b, "  v%-4d %s  %s\n", v.Version, v.Timestamp.Format("2006-01-02 15:04"), v.Description)
			for _, name := range sortedChangeNames(v.Changes) {
				c := v.Changes[name]
				fmt.Fprintf(&b, "        %s: %.3f -> %.3f\n", name, c.From, c.To)
			}
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n")
		b.WriteString(theme.Heading.Render("Recommendations"))
		b.WriteString("\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedChangeNames(changes map[string]Change) []string {
	s := make(Set, len(changes))
	for k := range changes {
		s[k] = 0
	}
	return s.Names()
}
