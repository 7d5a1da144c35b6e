package ensemble

// Weights is the Bayesian/external split used for one turn. The two
// components sum to 1.
type Weights struct {
	Bayesian float64 `json:"bayesian"`
	External float64 `json:"external"`
}

// BayesianOnly is used whenever the external classifier gave no answer.
var BayesianOnly = Weights{Bayesian: 1}

// schedule rows are early (turns 1-2), mid (3-4) and late (5+).
var (
	defaultSchedule  = [3]Weights{{0.70, 0.30}, {0.50, 0.50}, {0.30, 0.70}}
	informedSchedule = [3]Weights{{0.80, 0.20}, {0.55, 0.45}, {0.35, 0.65}}
)

// Schedule returns the fusion weights for a 1-based turn. An informed
// prior keeps the Bayesian side heavier for longer.
func Schedule(turn int, informedPrior bool) Weights {
	table := defaultSchedule
	if informedPrior {
		table = informedSchedule
	}
	switch {
	case turn <= 2:
		return table[0]
	case turn <= 4:
		return table[1]
	default:
		return table[2]
	}
}
