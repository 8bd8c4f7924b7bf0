package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jpalmerr/ihtml"
)

// previewConfig holds mutable state during Preview construction.
type previewConfig struct {
	pageURL           string
	title             string
	port              int
	settleTimeout     time.Duration
	logger            *slog.Logger
	docOpts           []ihtml.Option
	snapshotCallbacks []func(Snapshot)
}

// Option configures a [Preview] during construction.
//
// Options return an error if validation fails, and [New] returns that error.
type Option func(*previewConfig) error

// WithPage sets the page to preview. Required.
//
// Returns an error unless url is an absolute http or https URL.
func WithPage(pageURL string) Option {
	return func(cfg *previewConfig) error {
		u, err := url.Parse(pageURL)
		if err != nil {
			return fmt.Errorf("invalid page url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("page url must be an absolute http(s) url, got %q", pageURL)
		}
		cfg.pageURL = pageURL
		return nil
	}
}

// WithTitle sets the inspector title. Defaults to "ihtml preview".
func WithTitle(title string) Option {
	return func(cfg *previewConfig) error {
		cfg.title = title
		return nil
	}
}

// WithPort sets the preview server port. Zero picks a free port; see
// [Preview.Addr]. Defaults to 8080.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *previewConfig) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("port must be between 0 and 65535, got %d", port)
		}
		cfg.port = port
		return nil
	}
}

// WithSettleTimeout bounds the initial wait for the page's includes before
// element snapshots are seeded. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithSettleTimeout(d time.Duration) Option {
	return func(cfg *previewConfig) error {
		if d <= 0 {
			return errors.New("settle timeout must be positive")
		}
		cfg.settleTimeout = d
		return nil
	}
}

// WithLogger sets the logger for the preview and its document.
//
// If not specified, slog.Default() is used.
//
// Returns an error if logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *previewConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithDocumentOptions passes options to the previewed [ihtml.Document],
// such as [ihtml.WithAttributeOverride] or [ihtml.WithRevealAll].
// Can be called multiple times.
func WithDocumentOptions(opts ...ihtml.Option) Option {
	return func(cfg *previewConfig) error {
		for i, o := range opts {
			if o == nil {
				return fmt.Errorf("document option %d is nil", i)
			}
		}
		cfg.docOpts = append(cfg.docOpts, opts...)
		return nil
	}
}

// WithSnapshotCallback registers a callback invoked after each element
// snapshot is stored. Can be called multiple times.
//
// Callbacks run on the document's task loop, except for the initial seed
// of untouched elements, and must return quickly.
// Panics are recovered and logged.
//
// Returns an error if fn is nil.
func WithSnapshotCallback(fn func(Snapshot)) Option {
	return func(cfg *previewConfig) error {
		if fn == nil {
			return errors.New("snapshot callback cannot be nil")
		}
		cfg.snapshotCallbacks = append(cfg.snapshotCallbacks, fn)
		return nil
	}
}
