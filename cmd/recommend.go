package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mca/internal/intervention"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
	"github.com/abhisek/mca/internal/ui/theme"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend interventions for a user and task context",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		override, _ := cmd.Flags().GetString("pattern")
		explain, _ := cmd.Flags().GetBool("explain")
		maxCount, _ := cmd.Flags().GetInt("max")
		if !cmd.Flags().Changed("max") {
			maxCount = cfg.Recommender.MaxCount
		}

		ictx := intervention.Context{}
		crit, _ := cmd.Flags().GetString("criticality")
		cplx, _ := cmd.Flags().GetString("complexity")
		ictx.TaskCriticality = intervention.Level(strings.ToLower(crit))
		ictx.TaskComplexity = intervention.Level(strings.ToLower(cplx))
		ictx.UncertaintyIndicators, _ = cmd.Flags().GetInt("uncertainty")
		ictx.ControversialClaim, _ = cmd.Flags().GetBool("controversial")
		ictx.ConsecutiveUnverified, _ = cmd.Flags().GetInt("unverified")
		ictx.TrustScore, _ = cmd.Flags().GetFloat64("trust")
		shown, _ := cmd.Flags().GetStringSlice("shown")
		ictx = ictx.Shown(shown...)

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var p profile.Profile
		if user != "" {
			stored, err := e.Profile(cmd.Context(), user)
			if err != nil {
				return err
			}
			if stored == nil && override == "" {
				return fmt.Errorf("no profile for %s; run `mca classify --user %s <scores>` or pass --pattern", user, user)
			}
			if stored != nil {
				p = *stored
			}
		}
		if override != "" {
			pt, err := pattern.Parse(override)
			if err != nil {
				return err
			}
			p.Pattern = pt
		}
		if !p.Pattern.Valid() {
			return fmt.Errorf("--user or --pattern is required")
		}
		if !cmd.Flags().Changed("trust") {
			ictx.TrustScore = p.Indicators.TrustScore()
		}

		rec := e.Recommender()
		recs, err := rec.Recommend(p, ictx, maxCount)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  pattern %s (%s)\n\n", theme.Heading.Render("Interventions"), p.Pattern, p.Pattern.Name())
		if len(recs) == 0 {
			fmt.Fprintln(out, theme.Dim.Render("No intervention needed."))
		}
		for _, r := range recs {
			style := theme.ForUrgency(r.Urgency)
			fmt.Fprintf(out, "%s %-26s %-12s %3d  %s\n",
				style.Render(fmt.Sprintf("[%-6s]", r.Urgency)), r.ID, r.Category, r.Priority, r.Display)
			fmt.Fprintf(out, "         %s\n", r.Message)
			fmt.Fprintf(out, "         %s\n", theme.Dim.Render(r.Reason))
		}

		if explain {
			fmt.Fprintf(out, "\n%s\n", theme.Heading.Render("All rules"))
			for _, rule := range rec.Rules() {
				ev, err := rec.EvaluateTrigger(rule.ID, p, ictx)
				if err != nil {
					return err
				}
				mark := " "
				if ev.ShouldTrigger {
					mark = "✓"
				}
				fmt.Fprintf(out, "  %s %-26s %3d  %s\n", mark, rule.ID, ev.Priority, ev.Reason)
			}
		}
		return nil
	},
}

func init() {
	recommendCmd.Flags().String("user", "", "User whose stored profile to use")
	recommendCmd.Flags().String("pattern", "", "Pattern to recommend for (overrides the profile's)")
	recommendCmd.Flags().String("criticality", "low", "Task criticality: low, medium, high")
	recommendCmd.Flags().String("complexity", "low", "Task complexity: low, medium, high")
	recommendCmd.Flags().Int("uncertainty", 0, "Uncertainty indicators in the response")
	recommendCmd.Flags().Bool("controversial", false, "The response makes a controversial claim")
	recommendCmd.Flags().Int("unverified", 0, "Consecutive answers accepted without verification")
	recommendCmd.Flags().Float64("trust", 0, "Current trust score (default: profile's latest)")
	recommendCmd.Flags().StringSlice("shown", nil, "Intervention ids already shown")
	recommendCmd.Flags().Int("max", 0, "Maximum interventions (default from config)")
	recommendCmd.Flags().Bool("explain", false, "Show the evaluation of every rule")
}
