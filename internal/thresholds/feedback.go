package thresholds

import (
	"fmt"
	"time"

	"github.com/abhisek/mca/internal/pattern"
)

// HybridContext tags feedback gathered while the estimator was exploring
// between patterns.
const HybridContext = "hybrid"

// FeedbackEntry is one ground-truth label for a past prediction.
// Entries are append-only.
type FeedbackEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Predicted pattern.Pattern `json:"predicted"`
	Actual    pattern.Pattern `json:"actual"`
	Accurate  bool            `json:"accurate"`
	Timestamp time.Time       `json:"timestamp"`
	Context   string          `json:"context,omitempty"`
}

// Validate checks both labels.
func (e FeedbackEntry) Validate() error {
	if !e.Predicted.Valid() {
		return &pattern.InputError{Field: "predicted", Value: string(e.Predicted), Err: fmt.Errorf("unknown pattern label")}
	}
	if !e.Actual.Valid() {
		return &pattern.InputError{Field: "actual", Value: string(e.Actual), Err: fmt.Errorf("unknown pattern label")}
	}
	return nil
}

// falsePositive is an inaccurate prediction of a different pattern.
func (e FeedbackEntry) falsePositive() bool {
	return !e.Accurate && e.Actual != e.Predicted
}

// Archiver receives entries evicted from the learner's in-memory history.
type Archiver interface {
	Archive(entries []FeedbackEntry) error
}
