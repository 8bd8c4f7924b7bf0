// Package main is the entry point for the ihtml CLI.
//
// The CLI renders pages whose i-html elements have been loaded, and serves a
// live preview of a page with an element inspector.
//
// Usage:
//
//	ihtml render https://example.com/  # Print the settled page
//	ihtml render -c ihtml.yaml         # Render every configured page
//	ihtml serve -c ihtml.yaml          # Start the preview server
//	ihtml validate -c ihtml.yaml       # Validate configuration
//	ihtml version                      # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "ihtml",
	Short: "Load and preview pages built from i-html includes",
	Long: `ihtml fetches a page, loads every <i-html> element on it and
injects the fetched fragments, the way a browser would.

Quick start:
  1. Run: ihtml render https://example.com/
  2. Or create a config file (ihtml.yaml) and run: ihtml serve -c ihtml.yaml
  3. Open http://localhost:8080/inspect in your browser

Example config:
  port: 8080
  settle_timeout: 30s
  pages:
    - name: home
      url: http://localhost:3000/
      overrides:
        "#cart":
          src: /fragments/cart?debug=1`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this ihtml binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ihtml %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
}

// newLogger creates a JSON logger on stderr at the level given by --log-level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", raw)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}
