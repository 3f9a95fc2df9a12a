package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rentguard/rentguard-cli/internal/model"
)

var (
	trendsInput inputFlags
	trendsJSON  bool
)

var trendsCmd = &cobra.Command{
	Use:   "trends [path-or-url...]",
	Short: "Show monthly enforcement rates",
	Long: "Evaluates the given ledgers and prints the monthly enforcement rate of the resulting artifacts. " +
		"With no ledgers the reference series is shown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		if len(args) > 0 || trendsInput.sample {
			if _, err := evaluateInputs(ctx, sess, args, trendsInput); err != nil {
				return err
			}
		}

		points := sess.Trends()
		summary := sess.Summary()
		if trendsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"points": points, "summary": summary}); err != nil {
				return eris.Wrap(err, "trends: encode")
			}
			return nil
		}

		formatTrends(os.Stdout, points, summary)
		return nil
	},
}

func formatTrends(out io.Writer, points []model.TrendPoint, summary model.TrendSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tENFORCED\tTOTAL\tRATE")
	for _, p := range points {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n", p.Period, p.Enforced, p.Total, p.EnforcementRate)
	}
	_ = w.Flush()

	if summary.Periods == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\nOverall: %.1f%% (%d/%d)  Latest: %.1f%%  Change: %+.1f (%s)\n",
		summary.OverallRate, summary.Enforced, summary.Total, summary.LatestRate, summary.Delta, summary.Direction)
}

func init() {
	addInputFlags(trendsCmd, &trendsInput)
	trendsCmd.Flags().BoolVar(&trendsJSON, "json", false, "print points and summary as JSON")
	rootCmd.AddCommand(trendsCmd)
}
