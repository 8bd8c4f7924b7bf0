// Command example serves the demo shop and a live preview of its home page.
//
// Usage:
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/ihtml"
	"github.com/jpalmerr/ihtml/example/shop"
	"github.com/jpalmerr/ihtml/preview"
)

func main() {
	logger := slog.Default()

	// start the demo shop (see shop/shop.go)
	go func() {
		if err := http.ListenAndServe(":9999", shop.Handler(logger)); err != nil {
			logger.Error("shop server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	p, err := preview.New(
		preview.WithPage("http://localhost:9999/"),
		preview.WithPort(8080),
		preview.WithTitle("Demo shop"),
		preview.WithDocumentOptions(
			ihtml.WithRevealAll(),
			// show the reviews without waiting for a visibility report
			ihtml.WithAttributeOverride("#reviews", "loading", "eager"),
		),
		preview.WithSnapshotCallback(func(s preview.Snapshot) {
			if s.Error != nil {
				logger.Warn("include failed", "element", s.Key, "error", *s.Error)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create preview", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ihtml demo")
	fmt.Println()
	fmt.Println("  Page:      http://localhost:8080/")
	fmt.Println("  Inspector: http://localhost:8080/inspect")
	fmt.Println("  Metrics:   http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		slog.Error("preview error", "error", err)
		os.Exit(1)
	}
}
