// Package external talks to optional secondary pattern classifiers: a
// score-based HTTP service or an LLM. Their output is advisory; callers
// treat every error as "no second opinion this turn".
package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/mca/internal/pattern"
)

//go:generate mockgen -destination=mocks/mock_classifier.go -package=mocks github.com/abhisek/mca/internal/external Classifier

// Classifier returns a probability distribution over the six patterns.
type Classifier interface {
	Classify(ctx context.Context, s pattern.Signals) (pattern.Distribution, error)
}

// ErrUnavailable wraps every failure of an external classifier: timeouts,
// transport errors and malformed replies.
var ErrUnavailable = errors.New("external classifier unavailable")

// unavailable wraps err so that errors.Is(err, ErrUnavailable) holds while
// the cause stays reachable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// checked validates a reply and renormalizes it over all six labels.
// Missing labels count as zero mass.
func checked(d pattern.Distribution) (pattern.Distribution, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d.Normalize(), nil
}
