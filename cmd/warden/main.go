package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warden/internal/config"
	"warden/internal/logging"
)

var (
	// Global flags
	configPath string
	debug      bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "warden - LLM output governance gateway",
	Long: `warden evaluates LLM output through a three-tier detection pipeline:

  1. Pattern matching: compiled regex catalog, resolves ~95% of traffic
  2. Semantic analysis: embedding similarity against per-class prototypes
  3. LLM judgment: provider chain with a persistent decision cache

Every request yields a verdict (allow/log/warn/block) derived from a
declarative policy document.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotenv()

		var err error
		logger, err = logging.New(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/warden.yaml", "path to gateway config")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(hashPasswordCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
