package ihtml

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/markup"
)

const defaultRefreshUnit = time.Second

// docConfig holds mutable state during Document construction.
type docConfig struct {
	logger      *slog.Logger
	httpClient  *http.Client
	maxBodySize int64
	refreshUnit time.Duration
	revealAll   bool
	observers   []func(*Event)
	registerer  prometheus.Registerer
	tracer      trace.Tracer
	headers     map[string]string
	transforms  []func(*html.Node) error
}

// Option configures a [Document] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, and [NewDocument] or [Open] return that error.
type Option func(*docConfig) error

// WithLogger sets the logger for the document and its elements.
//
// If not specified, slog.Default() is used.
//
// Returns an error if logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *docConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPClient sets the client used for credentialed requests. Its Jar,
// if any, holds the cookies sent for include and same-origin loads.
//
// If not specified, a pooled client with HTTP/2 and an in-memory cookie jar
// is created.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *docConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithMaxBodySize limits how many bytes of a response body are read.
// Larger responses fail with [ErrNetwork]. Defaults to 4MB.
func WithMaxBodySize(n int64) Option {
	return func(cfg *docConfig) error {
		if n <= 0 {
			return errors.New("max body size must be positive")
		}
		cfg.maxBodySize = n
		return nil
	}
}

// WithRefreshUnit sets the duration of one refresh delay unit. A directive
// of "2; url=/next" waits two units. Defaults to one second.
func WithRefreshUnit(d time.Duration) Option {
	return func(cfg *docConfig) error {
		if d <= 0 {
			return errors.New("refresh unit must be positive")
		}
		cfg.refreshUnit = d
		return nil
	}
}

// WithRevealAll treats every lazy element as visible, so lazy elements load
// as soon as they are observed. Useful for headless rendering where no
// viewport geometry is ever reported.
func WithRevealAll() Option {
	return func(cfg *docConfig) error {
		cfg.revealAll = true
		return nil
	}
}

// WithObserver registers a document-wide hook that receives every element
// event after the element's own listeners. Can be called multiple times.
//
// Observers run on the document's task loop with the same restrictions as
// a [Listener].
func WithObserver(fn func(*Event)) Option {
	return func(cfg *docConfig) error {
		if fn == nil {
			return errors.New("observer cannot be nil")
		}
		cfg.observers = append(cfg.observers, fn)
		return nil
	}
}

// WithMetrics registers load metrics with reg. Several documents may share
// one registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *docConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithTracer sets the tracer used for load attempt spans. If not specified,
// the global OpenTelemetry tracer provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(cfg *docConfig) error {
		if t == nil {
			return errors.New("tracer cannot be nil")
		}
		cfg.tracer = t
		return nil
	}
}

// WithPageHeaders adds headers to every request the document makes: the
// page fetch in [Open] and each element load. Elements always set their own
// Accept header.
//
// Example:
//
//	doc, err := ihtml.Open(ctx, pageURL,
//	    ihtml.WithPageHeaders("Authorization", "Bearer token"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithPageHeaders(keyValues ...string) Option {
	return func(cfg *docConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithPageHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithPageTransform registers fn to edit the parsed page before any element
// is upgraded, so attribute changes it makes take effect on the first load.
// Transforms run in registration order; an error aborts construction.
func WithPageTransform(fn func(root *html.Node) error) Option {
	return func(cfg *docConfig) error {
		if fn == nil {
			return errors.New("page transform cannot be nil")
		}
		cfg.transforms = append(cfg.transforms, fn)
		return nil
	}
}

// WithAttributeOverride sets attributes on every i-html element matching
// selector before the page's elements upgrade. Matches that are not i-html
// elements are left alone.
//
// Example:
//
//	doc, err := ihtml.Open(ctx, pageURL,
//	    ihtml.WithAttributeOverride("#cart", "src", "/cart?debug=1", "loading", "eager"),
//	)
//
// Returns an error for an invalid selector or an odd number of arguments.
func WithAttributeOverride(selector string, keyValues ...string) Option {
	return func(cfg *docConfig) error {
		sel, err := cascadia.Compile(selector)
		if err != nil {
			return fmt.Errorf("invalid override selector %q: %w", selector, err)
		}
		if len(keyValues) == 0 || len(keyValues)%2 != 0 {
			return errors.New("WithAttributeOverride requires key-value pairs")
		}
		attrs := append([]string(nil), keyValues...)

		cfg.transforms = append(cfg.transforms, func(root *html.Node) error {
			for _, n := range sel.MatchAll(root) {
				if !markup.IsElement(n, TagName) || n.Namespace != "" {
					continue
				}
				for i := 0; i < len(attrs); i += 2 {
					markup.SetAttr(n, attrs[i], attrs[i+1])
				}
			}
			return nil
		})
		return nil
	}
}
