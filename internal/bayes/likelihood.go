package bayes

import (
	"fmt"
	"math"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/thresholds"
)

// sharpness scales fit scores into likelihoods. Larger values let a
// single turn move the posterior further.
const sharpness = 4.0

// fit holds per-pattern fit scores in [0,1] plus the threshold evidence
// that contributed to them.
type fit struct {
	score    [pattern.NumPatterns]float64
	evidence []string
}

// score computes how well one turn's signals fit each archetype.
func score(s pattern.Signals, th thresholds.Set) fit {
	var f fit

	planning := (s.TaskDecomposition + s.GoalClarity + s.StrategyPlanning + s.RoleDefinition) / 4
	evaluation := (s.QualityEvaluation + s.RiskAwareness + s.CapabilityJudgment) / 3
	qr := s.QueryRatio()
	verif := s.VerificationRate

	fq := th.Get(thresholds.FQueryRatio)
	fv := th.Get(thresholds.FVerification)
	av := th.Get(thresholds.AVerification)

	queryFit := ramp(qr, fq)
	if qr >= fq {
		f.evidence = append(f.evidence, fmt.Sprintf("query ratio %.2f >= %s %.2f", qr, thresholds.FQueryRatio, fq))
	}
	lowVerifFit := 1.0
	if verif <= fv {
		f.evidence = append(f.evidence, fmt.Sprintf("verification %.2f <= %s %.2f", verif, thresholds.FVerification, fv))
	} else if fv < 1 {
		lowVerifFit = (1 - verif) / (1 - fv)
	}
	highVerifFit := ramp(verif, av)
	if verif >= av {
		f.evidence = append(f.evidence, fmt.Sprintf("verification %.2f >= %s %.2f", verif, thresholds.AVerification, av))
	}

	f.score[pattern.A.Index()] = 0.35*planning + 0.35*highVerifFit + 0.30*s.CapabilityJudgment
	f.score[pattern.B.Index()] = 0.60*s.IterationRate + 0.20*s.ProgressTracking + 0.20*s.QualityEvaluation
	f.score[pattern.C.Index()] = 0.35*s.StrategyPlanning + 0.30*s.TrustCalibration + 0.35*s.ToolSwitching
	f.score[pattern.D.Index()] = 0.50*verif + 0.30*s.QualityEvaluation + 0.20*s.RiskAwareness
	f.score[pattern.E.Index()] = 0.70*evaluation + 0.30*s.TaskDecomposition
	f.score[pattern.F.Index()] = 0.40*queryFit + 0.40*lowVerifFit + 0.20*(1-evaluation)
	return f
}

// ramp is 1 at or above threshold and rises linearly from 0 below it.
func ramp(v, threshold float64) float64 {
	if v >= threshold {
		return 1
	}
	if threshold <= 0 {
		return 1
	}
	return v / threshold
}

func likelihood(score float64) float64 {
	return math.Exp(sharpness * score)
}
