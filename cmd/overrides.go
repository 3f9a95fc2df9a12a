package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/pipeline"
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Work with the override review queue",
	Long:  "Commands for listing override requests and assembling packets for the tenants they name.",
}

// -- overrides list --

var overridesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued override requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		queue, err := model.LoadOverrides(cfg.Overrides.File)
		if err != nil {
			return err
		}
		if len(queue) == 0 {
			fmt.Fprintln(os.Stderr, "No override requests.")
			return nil
		}
		formatOverrides(os.Stdout, queue)
		return nil
	},
}

// -- overrides packet --

var overridesPacketInput inputFlags

var overridesPacketCmd = &cobra.Command{
	Use:   "packet <override-id> [path-or-url...]",
	Short: "Assemble the packet for an override request's tenant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("packet"); err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		if _, err := evaluateInputs(ctx, sess, args[1:], overridesPacketInput); err != nil {
			return err
		}

		pkt, err := sess.AssembleForOverride(ctx, args[0])
		if err != nil {
			return err
		}
		path, err := pkt.WriteTo(cfg.Packet.OutputDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

// -- overrides cohort --

var (
	cohortInput   inputFlags
	cohortTenants []string
)

var overridesCohortCmd = &cobra.Command{
	Use:   "cohort [path-or-url...]",
	Short: "Assemble one packet per tenant",
	Long: "Evaluates every row of the given ledgers, then assembles a packet for each tenant " +
		"(or only those named with --tenant) concurrently.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("packet"); err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		in := cohortInput
		in.batch = true
		if _, err := evaluateInputs(ctx, sess, args, in); err != nil {
			return err
		}

		results, err := sess.AssembleCohort(ctx, cohortTenants)
		if err != nil {
			return err
		}

		failed := 0
		for i, res := range results {
			if res.Err != nil {
				failed++
				continue
			}
			path, err := res.Packet.WriteTo(cfg.Packet.OutputDir)
			if err != nil {
				results[i].Err = err
				failed++
				continue
			}
			zap.L().Info("cohort: packet written", zap.String("tenant_id", res.TenantID), zap.String("path", path))
		}
		formatCohort(os.Stdout, results)

		if failed > 0 {
			return eris.Errorf("%d of %d packets failed", failed, len(results))
		}
		return nil
	},
}

func formatOverrides(out io.Writer, queue []model.OverrideRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTENANT\tSTATUS\tSUBMITTED\tREQUESTED BY\tREASON")
	for _, o := range queue {
		submitted := "-"
		if !o.SubmittedAt.IsZero() {
			submitted = o.SubmittedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.TenantID, o.Status, submitted, dash(o.RequestedBy), dash(o.Reason))
	}
	_ = w.Flush()
}

func formatCohort(out io.Writer, results []pipeline.CohortResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TENANT\tARTIFACTS\tFILE\tERROR")
	for _, res := range results {
		if res.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t%s\n", res.TenantID, res.Err.Error())
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t-\n", res.TenantID, res.Packet.ArtifactCount, res.Packet.Filename)
	}
	_ = w.Flush()
}

func init() {
	addInputFlags(overridesPacketCmd, &overridesPacketInput)

	overridesCohortCmd.Flags().StringVar(&cohortInput.format, "format", "", "ledger format: csv, json or xlsx (default detected)")
	overridesCohortCmd.Flags().BoolVar(&cohortInput.sample, "sample", false, "evaluate the built-in demo ledger instead of a file")
	overridesCohortCmd.Flags().StringSliceVar(&cohortTenants, "tenant", nil, "tenant ids to assemble (default: every tenant evaluated)")

	overridesCmd.AddCommand(overridesListCmd)
	overridesCmd.AddCommand(overridesPacketCmd)
	overridesCmd.AddCommand(overridesCohortCmd)
	rootCmd.AddCommand(overridesCmd)
}
