package main

import (
	"fmt"

	"github.com/jpalmerr/ihtml/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without fetching anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an ihtml configuration file without fetching any page.

This command parses the YAML, expands environment variables, and validates
all fields, including override selectors. It's useful for CI/CD pipelines.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  ihtml validate -c ihtml.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	overrides := 0
	for _, p := range cfg.Pages {
		overrides += len(p.Overrides)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Config is valid!\n")
	fmt.Fprintf(w, "  Port:           %d\n", cfg.Port)
	fmt.Fprintf(w, "  Settle timeout: %s\n", cfg.SettleTimeout.Duration())
	fmt.Fprintf(w, "  Refresh unit:   %s\n", cfg.RefreshUnit.Duration())
	fmt.Fprintf(w, "  Pages:          %d (%d overrides)\n", len(cfg.Pages), overrides)
	for _, p := range cfg.Pages {
		fmt.Fprintf(w, "    - %s\n", p.Name)
	}

	return nil
}
