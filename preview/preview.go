package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jpalmerr/ihtml"
	"github.com/jpalmerr/ihtml/dashboard"
	"github.com/jpalmerr/ihtml/internal/server"
	"github.com/jpalmerr/ihtml/internal/store"
)

const (
	defaultPort          = 8080
	defaultSettleTimeout = 30 * time.Second
)

// Snapshot is the latest known state of one element, as served by the
// preview API and passed to snapshot callbacks.
type Snapshot = store.Snapshot

// Preview opens a page, tracks every i-html element on it and serves a live
// view of the result.
//
//	p, err := preview.New(
//	    preview.WithPage("http://localhost:3000/"),
//	    preview.WithDocumentOptions(ihtml.WithRevealAll()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	p.Start(ctx) // blocks until ctx is cancelled
type Preview struct {
	pageURL           string
	title             string
	port              int
	settleTimeout     time.Duration
	logger            *slog.Logger
	docOpts           []ihtml.Option
	snapshotCallbacks []func(Snapshot)

	mu   sync.Mutex
	addr net.Addr
}

// New creates a [Preview]. [WithPage] is required.
//
// Defaults:
//   - Port: 8080
//   - Settle timeout: 30 seconds
func New(opts ...Option) (*Preview, error) {
	cfg := &previewConfig{
		port:          defaultPort,
		settleTimeout: defaultSettleTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.pageURL == "" {
		return nil, errors.New("a page is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Preview{
		pageURL:           cfg.pageURL,
		title:             cfg.title,
		port:              cfg.port,
		settleTimeout:     cfg.settleTimeout,
		logger:            logger,
		docOpts:           cfg.docOpts,
		snapshotCallbacks: cfg.snapshotCallbacks,
	}, nil
}

// Start opens the page and serves the preview until ctx is cancelled.
//
// Every element event updates the element's snapshot. Once the page has
// settled (or the settle timeout passed) a snapshot of every element is
// stored, so elements that never load still appear.
//
// Returns nil on graceful shutdown. Returns an error if the page cannot be
// opened or the HTTP server fails to start.
func (p *Preview) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	p.logger.Info("preview starting", "page", p.pageURL)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	snapshots := store.NewMemoryStore()
	tr := newTracker(snapshots, p.snapshotCallbacks, p.logger)

	opts := []ihtml.Option{ihtml.WithLogger(p.logger), ihtml.WithMetrics(registry)}
	opts = append(opts, p.docOpts...)
	opts = append(opts, ihtml.WithObserver(tr.observe))

	doc, err := ihtml.Open(ctx, p.pageURL, opts...)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() { _ = doc.Close() }()

	srv := server.NewServer(server.Config{
		Store:    snapshots,
		Page:     doc,
		Port:     p.port,
		Assets:   dashboard.Assets,
		Title:    p.title,
		Gatherer: registry,
		Logger:   p.logger,
	})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	p.mu.Lock()
	p.addr = srv.Addr()
	p.mu.Unlock()
	p.logger.Info("preview available", "url", fmt.Sprintf("http://localhost:%d", srv.Addr().(*net.TCPAddr).Port))

	settleCtx, cancel := context.WithTimeout(ctx, p.settleTimeout)
	if err := doc.Settle(settleCtx); err != nil && ctx.Err() == nil {
		p.logger.Warn("page did not settle", "page", p.pageURL, "timeout", p.settleTimeout.String(), "error", err.Error())
	}
	cancel()
	tr.seed(doc.Elements())

	<-ctx.Done()
	p.logger.Info("preview stopped")
	return nil
}

// Addr returns the preview server address, or nil until [Preview.Start]
// has bound it.
func (p *Preview) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// PageURL returns the previewed page URL.
func (p *Preview) PageURL() string {
	return p.pageURL
}

// Port returns the configured port.
func (p *Preview) Port() int {
	return p.port
}

// tracker turns element events into snapshots.
type tracker struct {
	store     store.Store
	callbacks []func(Snapshot)
	logger    *slog.Logger

	mu    sync.Mutex
	keys  map[*ihtml.Element]string
	loads map[*ihtml.Element]int
	last  map[*ihtml.Element]string
	errs  map[*ihtml.Element]*string
}

func newTracker(st store.Store, callbacks []func(Snapshot), logger *slog.Logger) *tracker {
	return &tracker{
		store:     st,
		callbacks: callbacks,
		logger:    logger,
		keys:      make(map[*ihtml.Element]string),
		loads:     make(map[*ihtml.Element]int),
		last:      make(map[*ihtml.Element]string),
		errs:      make(map[*ihtml.Element]*string),
	}
}

// observe is registered as a document observer.
func (t *tracker) observe(ev *ihtml.Event) {
	t.mu.Lock()
	e := ev.Target
	t.last[e] = string(ev.Type)
	switch ev.Type {
	case ihtml.EventError:
		msg := ev.Err.Error()
		t.errs[e] = &msg
		t.loads[e]++
	case ihtml.EventLoad:
		t.errs[e] = nil
		t.loads[e]++
	}
	t.mu.Unlock()

	t.record(e)
}

// seed records the elements no event has reached yet.
func (t *tracker) seed(elements []*ihtml.Element) {
	for _, e := range elements {
		t.mu.Lock()
		_, seen := t.keys[e]
		t.mu.Unlock()
		if !seen {
			t.record(e)
		}
	}
}

func (t *tracker) record(e *ihtml.Element) {
	t.mu.Lock()
	key, ok := t.keys[e]
	if !ok {
		key = e.ID()
		if key == "" {
			key = fmt.Sprintf("i-html-%d", len(t.keys)+1)
		}
		t.keys[e] = key
	}
	snap := Snapshot{
		Key:       key,
		Src:       e.Src(),
		Accept:    e.Accept(),
		Loading:   string(e.Loading()),
		State:     e.State().String(),
		LastEvent: t.last[e],
		Loads:     t.loads[e],
		Allow:     e.Allow(),
		UpdatedAt: time.Now(),
		Error:     t.errs[e],
	}
	t.mu.Unlock()

	t.store.Update(snap)
	for _, cb := range t.callbacks {
		invokeCallbackSafe(cb, snap, t.logger)
	}
}

// invokeCallbackSafe calls a snapshot callback with panic recovery.
// Panics are logged with a correlation id and do not propagate.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("snapshot callback panicked",
				"panic", r,
				"element", snap.Key,
				"correlation_id", uuid.New().String(),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(snap)
}
