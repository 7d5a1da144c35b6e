package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
	"github.com/abhisek/mca/internal/rubric"
	"github.com/abhisek/mca/internal/ui/theme"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [scores]",
	Short: "Classify rubric scores into a collaboration pattern",
	Long: "Scores are twelve comma-separated values in p1..r2 order (e.g. 3,3,2,2,3,3,2,3,2,2,1,1)\n" +
		"or key=value pairs (e.g. p1=3,m2=0). With --user the result is stored as the\n" +
		"user's profile and primes their next sessions.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		labeled, _ := cmd.Flags().GetString("labeled")
		if labeled != "" {
			return runEvaluate(cmd.OutOrStdout(), labeled)
		}
		if len(args) == 0 {
			return fmt.Errorf("scores are required (or use --labeled)")
		}

		scores, err := parseScores(args[0])
		if err != nil {
			return err
		}
		if err := scores.Validate(); err != nil {
			return err
		}
		var c rubric.Classifier
		p, rule := c.Explain(scores)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (%s)\n", theme.Heading.Render("Pattern "+p.String()), p.Name(), rule)
		fmt.Fprintf(out, "Scores:  %s\n", scores)

		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return nil
		}
		ind, err := indicatorsFromFlags(cmd)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		if _, err := e.Assess(cmd.Context(), user, scores, ind); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved profile for %s\n", user)
		return nil
	},
}

func indicatorsFromFlags(cmd *cobra.Command) (profile.Indicators, error) {
	var ind profile.Indicators
	ind.InteractionCount, _ = cmd.Flags().GetInt("interactions")
	ind.VerificationRate, _ = cmd.Flags().GetFloat64("verification-rate")
	ind.AvgIterations, _ = cmd.Flags().GetFloat64("avg-iterations")
	ind.ToolEngagementRate, _ = cmd.Flags().GetFloat64("tool-engagement")
	if trust, _ := cmd.Flags().GetFloat64Slice("trust"); len(trust) > 0 {
		ind.TrustHistory = trust
	}
	if err := unitInterval("verification-rate", ind.VerificationRate); err != nil {
		return ind, err
	}
	return ind, unitInterval("tool-engagement", ind.ToolEngagementRate)
}

func unitInterval(field string, v float64) error {
	if v < 0 || v > 1 {
		return &pattern.InputError{Field: field, Value: v, Err: fmt.Errorf("must be in [0,1]")}
	}
	return nil
}

// parseScores accepts "v1,...,v12" or "key=value,...".
func parseScores(s string) (pattern.Scores, error) {
	parts := strings.Split(s, ",")
	if strings.Contains(s, "=") {
		m := make(map[string]int, len(parts))
		for _, kv := range parts {
			k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
			if !ok {
				return pattern.Scores{}, &pattern.InputError{Field: "scores", Value: kv, Err: fmt.Errorf("want key=value")}
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return pattern.Scores{}, &pattern.InputError{Field: k, Value: v, Err: err}
			}
			m[strings.ToLower(strings.TrimSpace(k))] = n
		}
		return pattern.ScoresFromMap(m)
	}
	return scoresFromFields(parts)
}

func scoresFromFields(fields []string) (pattern.Scores, error) {
	if len(fields) != len(pattern.DimensionKeys) {
		return pattern.Scores{}, &pattern.InputError{Field: "scores", Value: len(fields), Err: fmt.Errorf("want %d values", len(pattern.DimensionKeys))}
	}
	var v [12]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return pattern.Scores{}, &pattern.InputError{Field: pattern.DimensionKeys[i], Value: f, Err: err}
		}
		v[i] = n
	}
	return pattern.ScoresFromVector(v), nil
}

// runEvaluate scores the default rule chain against a CSV of twelve
// scores plus a label per row. A header row is skipped.
func runEvaluate(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open labeled file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(pattern.DimensionKeys) + 1
	r.TrimLeadingSpace = true

	var samples []rubric.Sample
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if line == 1 && strings.EqualFold(rec[0], pattern.DimensionKeys[0]) {
			continue
		}
		scores, err := scoresFromFields(rec[:len(rec)-1])
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		label, err := pattern.Parse(rec[len(rec)-1])
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		samples = append(samples, rubric.Sample{Scores: scores, Label: label})
	}
	if len(samples) == 0 {
		return fmt.Errorf("%s: no labeled rows", path)
	}

	fmt.Fprintln(out, theme.Heading.Render("Rubric classifier validation"))
	fmt.Fprintln(out)
	fmt.Fprint(out, rubric.Evaluate(samples).String())
	return nil
}

func init() {
	classifyCmd.Flags().String("labeled", "", "Validate against a CSV of p1..r2 scores plus label")
	classifyCmd.Flags().String("user", "", "Store the result as this user's profile")
	classifyCmd.Flags().Int("interactions", 0, "Interaction count for the stored profile")
	classifyCmd.Flags().Float64("verification-rate", 0, "Share of answers the user verified (0-1)")
	classifyCmd.Flags().Float64("avg-iterations", 0, "Average refinement rounds per task")
	classifyCmd.Flags().Float64("tool-engagement", 0, "Share of tasks where other tools were used (0-1)")
	classifyCmd.Flags().Float64Slice("trust", nil, "Trust-score readings, oldest first")
}
