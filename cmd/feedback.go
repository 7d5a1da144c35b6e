package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/mca/internal/archive"
	"github.com/abhisek/mca/internal/engine"
	"github.com/abhisek/mca/internal/ingest"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/store"
	"github.com/abhisek/mca/internal/thresholds"
	"github.com/abhisek/mca/internal/ui/theme"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record ground-truth labels that drive threshold adaptation",
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record one feedback entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		predictedFlag, _ := cmd.Flags().GetString("predicted")
		actualFlag, _ := cmd.Flags().GetString("actual")
		predicted, err := pattern.Parse(predictedFlag)
		if err != nil {
			return err
		}
		actual, err := pattern.Parse(actualFlag)
		if err != nil {
			return err
		}
		fb := thresholds.FeedbackEntry{Predicted: predicted, Actual: actual, Accurate: predicted == actual}
		fb.ID, _ = cmd.Flags().GetString("id")
		fb.UserID, _ = cmd.Flags().GetString("user")
		fb.Context, _ = cmd.Flags().GetString("context")
		if cmd.Flags().Changed("accurate") {
			fb.Accurate, _ = cmd.Flags().GetBool("accurate")
		}

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		v, err := e.RecordFeedback(cmd.Context(), fb)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Recorded feedback (%d total)\n", e.Learner().Total())
		printAdapted(out, v)
		return nil
	},
}

var feedbackImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import feedback from JSON or JSONL files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		out := cmd.OutOrStdout()
		for _, path := range args {
			entries, err := ingest.ReadFile(path)
			if err != nil {
				return err
			}
			added, dup, err := importEntries(cmd.Context(), out, e, entries)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(out, "%s: %d imported, %d duplicates skipped\n", path, added, dup)
		}
		return nil
	},
}

var feedbackWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Import feedback files dropped into a spool directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Ingest.SpoolDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no spool directory: pass one or set ingest.spool_dir")
		}

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		w := ingest.NewWatcher(dir, cfg.Ingest.Debounce, func(ctx context.Context, path string, entries []thresholds.FeedbackEntry) error {
			added, dup, err := importEntries(ctx, out, e, entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d imported, %d duplicates skipped\n", path, added, dup)
			return nil
		}, logger)
		return w.Watch(ctx)
	},
}

// importEntries records entries in order, skipping ids already stored.
func importEntries(ctx context.Context, out io.Writer, e *engine.Engine, entries []thresholds.FeedbackEntry) (added, dup int, err error) {
	for _, fb := range entries {
		v, err := e.RecordFeedback(ctx, fb)
		if errors.Is(err, store.ErrDuplicate) {
			dup++
			continue
		}
		if err != nil {
			return added, dup, err
		}
		added++
		printAdapted(out, v)
	}
	return added, dup, nil
}

func printAdapted(out io.Writer, v *thresholds.AlgorithmVersion) {
	if v == nil {
		return
	}
	fmt.Fprintf(out, "Thresholds adapted: v%d %s\n", v.Version, v.Description)
}

var feedbackArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Summarize feedback evicted from the learner into the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		user, _ := cmd.Flags().GetString("user")
		if dir == "" {
			dir = cfg.Learner.ArchiveDir
		}
		if dir == "" {
			return fmt.Errorf("no archive directory (set learner.archive_dir or --dir)")
		}
		entries, err := archive.ReadAll(dir)
		if err != nil {
			return err
		}
		printArchive(cmd.OutOrStdout(), entries, user)
		return nil
	},
}

// printArchive reports per-pattern accuracy of archived entries,
// optionally for one user.
func printArchive(out io.Writer, entries []thresholds.FeedbackEntry, user string) {
	var total, correct int
	perPattern := make(map[pattern.Pattern][2]int, pattern.NumPatterns)
	for _, fb := range entries {
		if user != "" && fb.UserID != user {
			continue
		}
		c := perPattern[fb.Predicted]
		c[1]++
		total++
		if fb.Accurate {
			c[0]++
			correct++
		}
		perPattern[fb.Predicted] = c
	}
	if total == 0 {
		fmt.Fprintln(out, "No archived feedback.")
		return
	}
	fmt.Fprintln(out, theme.Heading.Render("Archived feedback"))
	fmt.Fprintf(out, "%-8s %8s %9s\n", "Pattern", "Entries", "Accuracy")
	for _, p := range pattern.All {
		c := perPattern[p]
		if c[1] == 0 {
			continue
		}
		fmt.Fprintf(out, "%-8s %8d %8.1f%%\n", p, c[1], 100*float64(c[0])/float64(c[1]))
	}
	fmt.Fprintf(out, "%-8s %8d %8.1f%%\n", "TOTAL", total, 100*float64(correct)/float64(total))
}

func init() {
	feedbackArchiveCmd.Flags().String("dir", "", "Archive directory (default: learner.archive_dir)")
	feedbackArchiveCmd.Flags().String("user", "", "Only entries for this user")

	feedbackAddCmd.Flags().String("predicted", "", "Predicted pattern (A-F)")
	feedbackAddCmd.Flags().String("actual", "", "Confirmed pattern (A-F)")
	feedbackAddCmd.Flags().Bool("accurate", false, "Override accuracy (default: predicted == actual)")
	feedbackAddCmd.Flags().String("id", "", "Entry id (default: random)")
	feedbackAddCmd.Flags().String("user", "", "User id")
	feedbackAddCmd.Flags().String("context", "", `Context tag, e.g. "hybrid"`)
	_ = feedbackAddCmd.MarkFlagRequired("predicted")
	_ = feedbackAddCmd.MarkFlagRequired("actual")

	feedbackCmd.AddCommand(feedbackAddCmd)
	feedbackCmd.AddCommand(feedbackImportCmd)
	feedbackCmd.AddCommand(feedbackWatchCmd)
	feedbackCmd.AddCommand(feedbackArchiveCmd)
}
