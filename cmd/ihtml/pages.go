package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/ihtml/config"
)

// loadConfig returns the configuration named by --config, or a default one
// built from the URL arguments. Exactly one of the two must be given.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	switch {
	case configFile != "" && len(args) > 0:
		return nil, errors.New("use either --config or page urls, not both")
	case configFile != "":
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	case len(args) > 0:
		cfg, err := config.Default(args...)
		if err != nil {
			return nil, fmt.Errorf("invalid page url: %w", err)
		}
		return cfg, nil
	default:
		return nil, errors.New("a config file or at least one page url is required")
	}
}

// applyFlags folds the flags shared by render and serve into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if reveal, _ := cmd.Flags().GetBool("reveal-all"); reveal {
		cfg.RevealAll = true
	}
	if cmd.Flags().Changed("settle-timeout") {
		d, _ := cmd.Flags().GetDuration("settle-timeout")
		cfg.SettleTimeout = config.Duration(d)
	}
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to config file")
	cmd.Flags().Bool("reveal-all", false, "load lazy elements without waiting for visibility")
	cmd.Flags().Duration("settle-timeout", 0, "how long to wait for includes to finish loading")
}
