package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/ihtml"
	"github.com/jpalmerr/ihtml/config"
)

// maxConcurrentPages bounds how many pages render at once.
const maxConcurrentPages = 4

// renderCmd prints pages after their includes have loaded.
var renderCmd = &cobra.Command{
	Use:   "render [url...]",
	Short: "Print pages with their includes loaded",
	Long: `Fetch each page, load its i-html elements and print the resulting HTML.

Pages come either from the URL arguments or from a config file. When more
than one page is rendered, each is preceded by a comment naming it.

A page that does not settle within the settle timeout is printed as it is
at that moment.

Example:
  ihtml render https://example.com/
  ihtml render -c ihtml.yaml --page home
  ihtml render --reveal-all --settle-timeout 5s https://example.com/`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	addPageFlags(renderCmd)
	renderCmd.Flags().String("page", "", "render only the named page from the config")
}

func runRender(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	pages := cfg.Pages
	if name, _ := cmd.Flags().GetString("page"); name != "" {
		p, err := cfg.Page(name)
		if err != nil {
			return err
		}
		pages = []config.PageConfig{p}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rendered := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPages)
	for i, p := range pages {
		g.Go(func() error {
			out, err := renderPage(gctx, cfg, p, logger)
			if err != nil {
				return fmt.Errorf("page %s: %w", p.Name, err)
			}
			rendered[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, p := range pages {
		if len(pages) > 1 {
			fmt.Fprintf(w, "<!-- page: %s -->\n", p.Name)
		}
		fmt.Fprintln(w, rendered[i])
	}
	return nil
}

// renderPage opens one page, waits for it to settle and returns its markup.
func renderPage(ctx context.Context, cfg *config.Config, page config.PageConfig, logger *slog.Logger) (string, error) {
	opts := append([]ihtml.Option{ihtml.WithLogger(logger)}, config.DocumentOptions(cfg, page)...)
	doc, err := ihtml.Open(ctx, page.URL, opts...)
	if err != nil {
		return "", err
	}
	defer func() { _ = doc.Close() }()

	settleCtx := ctx
	if timeout := cfg.SettleTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := doc.Settle(settleCtx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("page did not settle",
			"page", page.Name,
			"timeout", cfg.SettleTimeout.Duration().String(),
		)
	}

	states := make(map[string]int)
	for _, e := range doc.Elements() {
		states[e.State().String()]++
	}
	logger.Debug("page rendered", "page", page.Name, "elements", len(doc.Elements()), "states", states)

	return doc.Render(), nil
}
