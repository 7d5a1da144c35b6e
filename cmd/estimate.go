package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/mca/internal/engine"
	"github.com/abhisek/mca/internal/intervention"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/session"
	"github.com/abhisek/mca/internal/ui/components"
	"github.com/abhisek/mca/internal/ui/theme"
)

// turnInput is one line of a turns file.
type turnInput struct {
	UserID  string               `json:"user_id"`
	Signals pattern.Signals      `json:"signals"`
	Context intervention.Context `json:"context"`
}

type replay struct {
	Path    string           `json:"path"`
	Results []session.Result `json:"turns"`
	Summary session.Summary  `json:"summary"`
}

var estimateCmd = &cobra.Command{
	Use:   "estimate <turns.jsonl>...",
	Short: "Replay turn files through the hybrid estimator",
	Long: "Each file is one session; each line is a turn of the form\n" +
		`{"user_id":"u1","signals":{"p1":0.2,...},"context":{"task_criticality":"high"}}` + "\n" +
		"Files are replayed concurrently. Snapshots and LLM calls are recorded in the database.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		parallel, _ := cmd.Flags().GetInt("parallel")
		asJSON, _ := cmd.Flags().GetBool("json")
		maxCount := cfg.Recommender.MaxCount

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		out := make([]replay, len(args))
		g, gctx := errgroup.WithContext(cmd.Context())
		if parallel > 0 {
			g.SetLimit(parallel)
		}
		for i, path := range args {
			g.Go(func() error {
				r, err := replayFile(gctx, e, path, user, maxCount)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				out[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		for _, r := range out {
			printReplay(w, r)
		}
		return nil
	},
}

func replayFile(ctx context.Context, e *engine.Engine, path, user string, maxCount int) (replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return replay{}, err
	}
	defer f.Close()

	var turns []turnInput
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var t turnInput
		if err := json.Unmarshal([]byte(text), &t); err != nil {
			return replay{}, fmt.Errorf("line %d: %w", line, err)
		}
		turns = append(turns, t)
	}
	if err := sc.Err(); err != nil {
		return replay{}, err
	}
	if len(turns) == 0 {
		return replay{}, fmt.Errorf("no turns")
	}

	if user == "" {
		user = turns[0].UserID
	}
	if user == "" {
		user = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s, err := e.NewSession(ctx, user)
	if err != nil {
		return replay{}, err
	}
	defer s.Close()

	r := replay{Path: path}
	for i, t := range turns {
		res, err := s.Turn(ctx, t.Signals, t.Context, maxCount)
		if err != nil {
			return replay{}, fmt.Errorf("turn %d: %w", i+1, err)
		}
		r.Results = append(r.Results, res)
	}
	r.Summary = s.Summary()
	return r, nil
}

func printReplay(w io.Writer, r replay) {
	fmt.Fprintf(w, "%s  %s\n", theme.Heading.Render(r.Path), theme.Dim.Render("session "+r.Summary.SessionID))
	fmt.Fprintf(w, "%-5s  %-7s  %-10s  %-13s  %-6s  %s\n", "Turn", "Pattern", "Confidence", "Method", "Stable", "Interventions")
	fmt.Fprintln(w, strings.Repeat("─", 80))

	for _, res := range r.Results {
		est := res.Estimate
		stable := "yes"
		if !est.Stability.IsStable {
			stable = "no"
		}
		conf := fmt.Sprintf("%.3f", est.Fused.Confidence)
		if est.Fused.NeedMoreData {
			conf += "*"
		}
		ids := make([]string, 0, len(res.Recommendations))
		for _, rec := range res.Recommendations {
			ids = append(ids, theme.ForUrgency(rec.Urgency).Render(rec.ID))
		}
		fmt.Fprintf(w, "%-5d  %-7s  %-10s  %-13s  %-6s  %s\n",
			est.Turn, est.Fused.Pattern, conf, est.Method, stable, strings.Join(ids, ", "))
	}

	last := r.Results[len(r.Results)-1].Estimate.Fused
	fmt.Fprintln(w)
	for _, p := range pattern.All {
		bar := components.NewProbabilityBar(p.String(), last.Distribution[p], 48)
		bar.Highlight = p == last.Pattern
		fmt.Fprintln(w, bar.View())
	}
	fmt.Fprintf(w, "\n%d turns, final %s (%s)", r.Summary.Turns, r.Summary.Pattern, r.Summary.Pattern.Name())
	if last.NeedMoreData {
		fmt.Fprint(w, theme.Dim.Render("  * more data needed"))
	}
	fmt.Fprint(w, "\n\n")
}

func init() {
	estimateCmd.Flags().String("user", "", "User id for every file (default: first line's user_id, then file name)")
	estimateCmd.Flags().Int("parallel", 4, "Maximum files replayed at once (0 = unlimited)")
	estimateCmd.Flags().Bool("json", false, "Print results as JSON")
}
