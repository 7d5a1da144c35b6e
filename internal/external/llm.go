package external

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/llm"
	"github.com/abhisek/mca/internal/pattern"
)

const classifySystem = `You classify how a person collaborates with an AI assistant.
Patterns:
A strategic control: plans the task, defines roles, verifies output, judges model capability.
B iterative refinement: rapid cycles of prompting and adjusting.
C context-adaptive: switches strategy and tools as the context changes.
D deep verification: checks most output carefully and assesses risk.
E collaborative learning: evaluates output critically to learn from it.
F passive over-reliance: asks bare questions and accepts answers unverified.
Reply with a probability for every pattern; the probabilities must sum to 1.`

// distributionSchema asks for one probability per label.
var distributionSchema = func() *llm.Schema {
	props := make(map[string]any, pattern.NumPatterns)
	required := make([]any, 0, pattern.NumPatterns)
	for _, p := range pattern.All {
		props[string(p)] = map[string]any{"type": "number", "minimum": 0, "maximum": 1}
		required = append(required, string(p))
	}
	return &llm.Schema{
		Name:        "pattern-distribution",
		Description: "Probability of each collaboration pattern A-F.",
		Definition: map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	}
}()

// LLMClassifier asks a language model for a pattern distribution.
type LLMClassifier struct {
	provider    llm.Provider
	maxTokens   int
	temperature float64
	log         *zap.Logger
}

func NewLLMClassifier(p llm.Provider, log *zap.Logger) *LLMClassifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMClassifier{provider: p, maxTokens: 256, log: log}
}

func (c *LLMClassifier) Classify(ctx context.Context, s pattern.Signals) (pattern.Distribution, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	req := llm.UserPrompt(classifySystem, signalsPrompt(s), distributionSchema, c.maxTokens)
	req.Temperature = c.temperature

	var reply map[string]float64
	resp, err := llm.Decode(llm.WithPurpose(ctx, llm.PurposeClassification), c.provider, req, &reply)
	if err != nil {
		return nil, unavailable("llm classify", err)
	}

	d := make(pattern.Distribution, len(reply))
	for label, p := range reply {
		d[pattern.Pattern(label)] = p
	}
	out, err := checked(d)
	if err != nil {
		return nil, unavailable("llm classify", err)
	}
	c.log.Debug("llm distribution", zap.String("model", resp.Model), zap.Stringer("top", topOf(out)))
	return out, nil
}

func signalsPrompt(s pattern.Signals) string {
	var b strings.Builder
	b.WriteString("Behavioral signals for the latest turn, each in [0,1]:\n")
	v := s.Vector()
	for i, k := range pattern.DimensionKeys {
		fmt.Fprintf(&b, "%s (%s): %.2f\n", k, pattern.DimensionNames[k], v[i])
	}
	fmt.Fprintf(&b, "query ratio: %.2f\n", s.QueryRatio())
	return b.String()
}

func topOf(d pattern.Distribution) pattern.Pattern {
	p, _, _, _ := d.Top()
	return p
}
