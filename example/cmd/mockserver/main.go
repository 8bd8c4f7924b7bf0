// Standalone demo shop for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/ihtml serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/ihtml/example/shop"
)

func main() {
	fmt.Println("Demo shop starting on :9999")
	fmt.Println("Prices stream from /events/prices, stock refreshes every 5s")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := http.ListenAndServe(":9999", shop.Handler(logger)); err != nil {
		slog.Error("mock server error", "error", err)
		os.Exit(1)
	}
}
