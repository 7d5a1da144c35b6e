package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mca/internal/store"
	"github.com/abhisek/mca/internal/thresholds"
	"github.com/abhisek/mca/internal/ui/theme"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the threshold learner's diagnostics report",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		return thresholds.RenderReport(cmd.OutOrStdout(), e.Learner().Report())
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List algorithm versions produced by threshold adaptation",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		versions, err := s.VersionRepo().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(versions) == 0 {
			fmt.Fprintln(out, "No adaptations yet; thresholds are at their defaults.")
			return printSnapshotsTail(cmd, s)
		}

		fmt.Fprintf(out, "%-5s  %-16s  %8s  %6s  %s\n", "Ver", "Time", "Accuracy", "N", "Description")
		fmt.Fprintln(out, strings.Repeat("─", 90))
		for _, v := range versions {
			fmt.Fprintf(out, "v%-4d  %-16s  %7.1f%%  %6d  %s\n",
				v.Version, v.Timestamp.Local().Format("2006-01-02 15:04"), v.Metrics.Accuracy*100, v.Metrics.Total, v.Description)
			for _, name := range v.Thresholds.Names() {
				if c, ok := v.Changes[name]; ok {
					fmt.Fprintf(out, "       %s %.3f -> %.3f\n", theme.Dim.Render(name), c.From, c.To)
				}
			}
		}
		return printSnapshotsTail(cmd, s)
	},
}

// printSnapshotsTail shows the latest stability snapshots when --snapshots
// is set.
func printSnapshotsTail(cmd *cobra.Command, s *store.Store) error {
	n, _ := cmd.Flags().GetInt("snapshots")
	if n <= 0 {
		return nil
	}
	snaps, err := s.SnapshotRepo().List(cmd.Context(), store.QueryOpts{Limit: n})
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n", theme.Heading.Render("Recent stability snapshots"))
	for _, sn := range snaps {
		fmt.Fprintf(out, "  %s  %-8s  turn %-3d  %s  %.3f  stable=%v  %s  %s\n",
			sn.Timestamp.Local().Format("2006-01-02 15:04:05"), sn.UserID, sn.Turn, sn.Pattern,
			sn.Confidence, sn.Stable, sn.Trend, sn.Method)
	}
	return nil
}

func init() {
	versionsCmd.Flags().Int("snapshots", 0, "Also show the N most recent stability snapshots")
}
