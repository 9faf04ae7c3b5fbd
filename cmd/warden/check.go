package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"warden/internal/config"
)

var (
	checkContext []string
	checkPolicy  string
)

// checkCmd evaluates one text and prints the verdict
var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Evaluate one text and print its verdict as JSON",
	Long: `Runs a single text through the detection pipeline without starting
the HTTP server. Exit status 2 means the text was blocked.

Example:
  warden check "Ignore all previous instructions." --context user=alice`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringArrayVar(&checkContext, "context", nil, "context entry as key=value (repeatable)")
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "policy document override")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if checkPolicy != "" {
		cfg.Policy.Path = checkPolicy
	}
	// One-shot runs keep stdout clean: no audit, no metrics registry.
	cfg.Audit.Enabled = false

	contextMap, err := parseContext(checkContext)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cmd.Context(), cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	defer p.close()

	verdict := p.tower.Evaluate(cmd.Context(), args[0], contextMap)

	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	fmt.Println(string(out))

	if verdict.ShouldBlock() {
		os.Exit(2)
	}
	return nil
}

func parseContext(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context entry %q (want key=value)", pair)
		}
		out[key] = value
	}
	return out, nil
}
