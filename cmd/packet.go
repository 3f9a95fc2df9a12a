package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	packetInput  inputFlags
	packetTenant string
	packetOut    string
)

var packetCmd = &cobra.Command{
	Use:   "packet [path-or-url...]",
	Short: "Assemble a judge packet",
	Long: "Evaluates the given ledgers, then requests a judge packet for the resulting artifacts. " +
		"The tenant defaults to that of the newest artifact.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("packet"); err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		if _, err := evaluateInputs(ctx, sess, args, packetInput); err != nil {
			return err
		}

		pkt, err := sess.AssembleForTenant(ctx, packetTenant)
		if err != nil {
			return err
		}

		dir := packetOut
		if dir == "" {
			dir = cfg.Packet.OutputDir
		}
		path, err := pkt.WriteTo(dir)
		if err != nil {
			return err
		}

		zap.L().Info("packet: written",
			zap.String("tenant_id", pkt.TenantID),
			zap.Int("artifacts", pkt.ArtifactCount),
			zap.String("path", path),
		)
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

func init() {
	addInputFlags(packetCmd, &packetInput)
	packetCmd.Flags().StringVar(&packetTenant, "tenant", "", "tenant id (default: tenant of the newest artifact)")
	packetCmd.Flags().StringVar(&packetOut, "out", "", "output directory (default from config)")
	rootCmd.AddCommand(packetCmd)
}
