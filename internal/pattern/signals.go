package pattern

import "fmt"

// Signals is the per-turn behavioral signal vector produced by the signal
// extraction step. Each field is a normalized [0,1] reading of the rubric
// dimension with the same key.
type Signals struct {
	TaskDecomposition  float64 `json:"p1"`
	GoalClarity        float64 `json:"p2"`
	StrategyPlanning   float64 `json:"p3"`
	RoleDefinition     float64 `json:"p4"`
	ProgressTracking   float64 `json:"m1"`
	VerificationRate   float64 `json:"m2"`
	TrustCalibration   float64 `json:"m3"`
	QualityEvaluation  float64 `json:"e1"`
	RiskAwareness      float64 `json:"e2"`
	CapabilityJudgment float64 `json:"e3"`
	IterationRate      float64 `json:"r1"`
	ToolSwitching      float64 `json:"r2"`
}

// Vector returns the signals in DimensionKeys order.
func (s Signals) Vector() [12]float64 {
	return [12]float64{
		s.TaskDecomposition, s.GoalClarity, s.StrategyPlanning, s.RoleDefinition,
		s.ProgressTracking, s.VerificationRate, s.TrustCalibration,
		s.QualityEvaluation, s.RiskAwareness, s.CapabilityJudgment,
		s.IterationRate, s.ToolSwitching,
	}
}

// Validate rejects NaN and values outside [0,1].
func (s Signals) Validate() error {
	for i, v := range s.Vector() {
		if v != v || v < 0 || v > 1 {
			return &InputError{Field: DimensionKeys[i], Value: v, Err: fmt.Errorf("signal must be in [0,1]")}
		}
	}
	return nil
}

// QueryRatio estimates how much of the user's traffic is bare querying
// rather than planned work: the complement of mean planning activity.
func (s Signals) QueryRatio() float64 {
	planning := (s.TaskDecomposition + s.GoalClarity + s.StrategyPlanning + s.RoleDefinition) / 4
	return 1 - planning
}

// RubricScale maps the signals onto the 0–3 rubric scale keyed p1..r2,
// the wire format expected by score-based classifiers.
func (s Signals) RubricScale() map[string]float64 {
	v := s.Vector()
	out := make(map[string]float64, len(v))
	for i, k := range DimensionKeys {
		out[k] = v[i] * MaxScore
	}
	return out
}

// SignalsFromScores converts discrete rubric scores into signals, useful for
// seeding a session from an assessment.
func SignalsFromScores(sc Scores) Signals {
	v := sc.Clamp().Vector()
	var f [12]float64
	for i := range v {
		f[i] = float64(v[i]) / MaxScore
	}
	return Signals{
		TaskDecomposition: f[0], GoalClarity: f[1], StrategyPlanning: f[2], RoleDefinition: f[3],
		ProgressTracking: f[4], VerificationRate: f[5], TrustCalibration: f[6],
		QualityEvaluation: f[7], RiskAwareness: f[8], CapabilityJudgment: f[9],
		IterationRate: f[10], ToolSwitching: f[11],
	}
}
