package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/pipeline"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

var (
	evalInput      inputFlags
	evalExport     string
	evalDeadLetter string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [path-or-url...]",
	Short: "Evaluate tenant ledgers against the decision engine",
	Long: "Normalizes each ledger (CSV, JSON or XLSX; local path, http(s):// or ftp://), " +
		"submits it to the decision engine and prints the returned artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := newSession(cfg)
		if err != nil {
			return err
		}

		results, err := evaluateInputs(ctx, sess, args, evalInput)
		if err != nil {
			return err
		}

		formatResults(os.Stdout, results)

		if evalExport != "" {
			for i, art := range sess.Artifacts() {
				path, err := exportArtifact(evalExport, i, art)
				if err != nil {
					return err
				}
				zap.L().Info("evaluate: artifact exported", zap.String("path", path))
			}
		}

		if evalDeadLetter != "" {
			if err := writeDeadLetters(evalDeadLetter, pipeline.DeadLetters(results, time.Now())); err != nil {
				return err
			}
		}

		if failed := countFailed(results); failed > 0 {
			return eris.Errorf("%d of %d records failed", failed, len(results))
		}
		return nil
	},
}

// exportArtifact writes one artifact's JSON under dir. The position prefix
// keeps artifacts that share an action from overwriting each other.
func exportArtifact(dir string, pos int, art model.Artifact) (string, error) {
	data, name, err := pipeline.ExportArtifact(art)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create export dir %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d_%s", pos+1, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "write %s", path)
	}
	return path, nil
}

// writeDeadLetters saves failed records as a JSON array. Nothing is written
// when every record succeeded.
func writeDeadLetters(path string, dead []resilience.DeadLetter) error {
	if len(dead) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(dead, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode dead letters")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	zap.L().Warn("evaluate: failed records saved", zap.String("path", path), zap.Int("count", len(dead)))
	return nil
}

func formatResults(out io.Writer, results []pipeline.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tTENANT\tARTIFACT\tSTATUS\tACTION\tTIMESTAMP")
	for _, res := range results {
		if res.Err != nil {
			_, _ = fmt.Fprintf(w, "%d\t%s\t-\t%s\t%s\t-\n",
				res.Index+1, dash(res.TenantID), resilience.KindOf(res.Err), res.Err.Error())
			continue
		}
		art := res.Artifact
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			res.Index+1, dash(art.TenantID), dash(art.ArtifactID), dash(art.Status), dash(art.Action), dash(art.Timestamp))
	}
	_ = w.Flush()
}

func countFailed(results []pipeline.BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	addInputFlags(evaluateCmd, &evalInput)
	evaluateCmd.Flags().StringVar(&evalExport, "export", "", "directory to write each artifact's JSON into")
	evaluateCmd.Flags().StringVar(&evalDeadLetter, "dead-letter", "", "file to write failed batch records into")
	rootCmd.AddCommand(evaluateCmd)
}
