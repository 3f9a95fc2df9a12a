package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/config"
)

var cfg *config.Config

var (
	configFile string
	engineURL  string
)

var rootCmd = &cobra.Command{
	Use:   "rentguard",
	Short: "Rent ledger compliance pipeline",
	Long:  "Normalizes tenant ledgers, submits them to the decision engine, tracks the returned artifacts and assembles judge packets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(configFile, engineURL)
		if err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&engineURL, "engine-url", "", "decision engine base URL, overrides engine.base_url")
}

// loadConfig reads configuration from path (or the default lookup) and applies
// the command-line engine URL on top.
func loadConfig(path, baseURL string) (*config.Config, error) {
	c, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if baseURL != "" {
		c.Engine.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
