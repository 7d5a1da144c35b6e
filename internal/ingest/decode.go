// Package ingest reads labeled feedback files and watches a spool
// directory for new ones.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/thresholds"
)

// record is the on-disk shape. Accurate defaults to predicted == actual.
type record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Predicted string    `json:"predicted"`
	Actual    string    `json:"actual"`
	Accurate  *bool     `json:"accurate"`
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context"`
}

func (r record) entry() (thresholds.FeedbackEntry, error) {
	predicted, err := pattern.Parse(r.Predicted)
	if err != nil {
		return thresholds.FeedbackEntry{}, err
	}
	actual, err := pattern.Parse(r.Actual)
	if err != nil {
		return thresholds.FeedbackEntry{}, err
	}
	accurate := predicted == actual
	if r.Accurate != nil {
		accurate = *r.Accurate
	}
	return thresholds.FeedbackEntry{
		ID:        r.ID,
		UserID:    r.UserID,
		Predicted: predicted,
		Actual:    actual,
		Accurate:  accurate,
		Timestamp: r.Timestamp,
		Context:   r.Context,
	}, nil
}

// Decode reads either a JSON array of entries or a stream of JSON objects
// (JSONL). Record numbers in errors start at 1.
func Decode(r io.Reader) ([]thresholds.FeedbackEntry, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feedback: %w", err)
	}

	var recs []record
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&recs); err != nil {
			return nil, fmt.Errorf("decode feedback array: %w", err)
		}
	} else {
		for n := 1; ; n++ {
			var rec record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", n, err)
			}
			recs = append(recs, rec)
		}
	}

	out := make([]thresholds.FeedbackEntry, 0, len(recs))
	for i, rec := range recs {
		e, err := rec.entry()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadFile decodes the feedback file at path.
func ReadFile(path string) ([]thresholds.FeedbackEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feedback file: %w", err)
	}
	entries, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
