package thresholds

import "time"

// Change records one threshold's movement.
type Change struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Metrics are lifetime classification quality figures.
type Metrics struct {
	Accuracy          float64 `json:"accuracy"`
	Coverage          float64 `json:"coverage"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	Total             int     `json:"total"`
}

// AlgorithmVersion is an immutable record of one adaptation step.
type AlgorithmVersion struct {
	Version     int               `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description"`
	Changes     map[string]Change `json:"changes"`
	Thresholds  Set               `json:"thresholds"`
	Metrics     Metrics           `json:"metrics"`
}

func (v AlgorithmVersion) clone() AlgorithmVersion {
	out := v
	out.Changes = make(map[string]Change, len(v.Changes))
	for k, c := range v.Changes {
		out.Changes[k] = c
	}
	out.Thresholds = v.Thresholds.Clone()
	return out
}
