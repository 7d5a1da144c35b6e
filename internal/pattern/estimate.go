package pattern

// Estimate is a single turn's classification result. Once produced it is
// not modified; callers that need a variant build a new value.
type Estimate struct {
	Pattern      Pattern      `json:"pattern"`
	Probability  float64      `json:"probability"`
	Confidence   float64      `json:"confidence"` // top minus second probability
	Distribution Distribution `json:"distribution"`
	NeedMoreData bool         `json:"need_more_data"`
	Evidence     []string     `json:"evidence,omitempty"`
}

// NewEstimate derives the top pattern and confidence margin from dist.
// The distribution is copied.
func NewEstimate(dist Distribution, evidence []string) Estimate {
	d := dist.Clone()
	top, p1, _, p2 := d.Top()
	ev := make([]string, len(evidence))
	copy(ev, evidence)
	return Estimate{
		Pattern:      top,
		Probability:  p1,
		Confidence:   p1 - p2,
		Distribution: d,
		Evidence:     ev,
	}
}

// WithConfidence returns a copy of e carrying a different confidence.
func (e Estimate) WithConfidence(c float64) Estimate {
	out := e
	out.Distribution = e.Distribution.Clone()
	out.Evidence = append([]string(nil), e.Evidence...)
	out.Confidence = c
	return out
}
