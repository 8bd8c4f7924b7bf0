package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/ihtml/config"
	"github.com/jpalmerr/ihtml/preview"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the preview server for one page.
var serveCmd = &cobra.Command{
	Use:   "serve [url]",
	Short: "Start the preview server",
	Long: `Start the preview server for one page.

The server will:
  - Fetch the page and load every i-html element on it
  - Serve the page as currently rendered at /
  - Serve an inspector listing every element and its state at /inspect

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  ihtml serve http://localhost:3000/
  ihtml serve -c ihtml.yaml --page checkout`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addPageFlags(serveCmd)
	serveCmd.Flags().String("page", "", "the configured page to preview (defaults to the first)")
	serveCmd.Flags().IntP("port", "p", 0, "preview server port (overrides the config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}

	name, _ := cmd.Flags().GetString("page")
	page, err := cfg.Page(name)
	if err != nil {
		return err
	}

	logger.Info("starting preview",
		"page", page.Name,
		"port", cfg.Port,
		"settle_timeout", cfg.SettleTimeout.Duration().String(),
	)

	p, err := preview.New(config.PreviewOptions(cfg, page, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create preview: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("preview error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("preview error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
