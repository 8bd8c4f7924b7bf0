package ihtml

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/fetch"
	"github.com/jpalmerr/ihtml/internal/intersect"
	"github.com/jpalmerr/ihtml/internal/loop"
	"github.com/jpalmerr/ihtml/internal/markup"
	"github.com/jpalmerr/ihtml/internal/sanitize"
	"github.com/jpalmerr/ihtml/internal/telemetry"
)

// TagName is the element name that is upgraded into an [Element].
const TagName = sanitize.ElementTag

// Document is a headless page holding i-html elements.
//
// A Document owns a parsed node tree, a serial task loop that runs every
// element's load logic, and the HTTP client used for loads. It is created
// with [NewDocument] or [Open]; every i-html element already in the page is
// upgraded and connected on the loop right away.
//
// The typical lifecycle is:
//
//	doc, err := ihtml.Open(ctx, "https://example.com/page", ihtml.WithRevealAll())
//	if err != nil {
//	    return err
//	}
//	defer doc.Close()
//
//	if err := doc.Settle(ctx); err != nil {
//	    return err
//	}
//	fmt.Println(doc.Render())
//
// Methods are safe for concurrent use unless noted otherwise.
type Document struct {
	url         *url.URL
	logger      *slog.Logger
	loop        *loop.Loop
	client      *fetch.Client
	observer    *intersect.Observer
	tel         *telemetry.Telemetry
	refreshUnit time.Duration
	headers     map[string]string
	observers   []func(*Event)

	mu       sync.RWMutex
	root     *html.Node
	elements map[*html.Node]*Element
	active   *html.Node

	settleMu sync.Mutex
	pending  int
	idle     chan struct{}

	closeOnce sync.Once
}

// NewDocument parses an HTML page read from r, with pageURL as the URL that
// relative element URLs resolve against and that defines the page origin.
//
// Returns an error if pageURL is not absolute, the page cannot be read, or
// any option is invalid.
func NewDocument(pageURL string, r io.Reader, opts ...Option) (*Document, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	client, err := fetch.NewClient(fetch.Options{HTTPClient: cfg.httpClient, MaxBodySize: cfg.maxBodySize})
	if err != nil {
		return nil, err
	}
	return newDocument(cfg, client, pageURL, r)
}

// Open fetches pageURL and builds a [Document] from the response.
//
// The page is fetched with the document's own client, so cookies it sets
// are visible to credentialed element loads. Non-2xx responses are errors.
func Open(ctx context.Context, pageURL string, opts ...Option) (*Document, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	client, err := fetch.NewClient(fetch.Options{HTTPClient: cfg.httpClient, MaxBodySize: cfg.maxBodySize})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch page: unexpected status %d", resp.StatusCode)
	}
	return newDocument(cfg, client, resp.URL, bytes.NewReader(resp.Body))
}

func buildConfig(opts []Option) (*docConfig, error) {
	cfg := &docConfig{
		refreshUnit: defaultRefreshUnit,
		headers:     make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg, nil
}

func newDocument(cfg *docConfig, client *fetch.Client, pageURL string, r io.Reader) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("page url must be absolute, got %q", pageURL)
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	for _, transform := range cfg.transforms {
		if err := transform(root); err != nil {
			return nil, fmt.Errorf("page transform failed: %w", err)
		}
	}

	d := &Document{
		url:         u,
		logger:      cfg.logger,
		loop:        loop.New(cfg.logger),
		client:      client,
		observer:    intersect.New(intersect.Options{RevealAll: cfg.revealAll}),
		tel:         telemetry.New(cfg.registerer, cfg.tracer),
		refreshUnit: cfg.refreshUnit,
		headers:     cfg.headers,
		observers:   cfg.observers,
		root:        root,
		elements:    make(map[*html.Node]*Element),
	}

	d.loop.Start(context.Background())
	d.loop.Post(func() { d.upgradeTree(d.root) })
	return d, nil
}

// URL returns the page URL.
func (d *Document) URL() string {
	return d.url.String()
}

// Root returns the document node. Read it only from listeners or after
// [Document.Settle]; elements mutate it on the task loop.
func (d *Document) Root() *html.Node {
	return d.root
}

// Render serializes the whole page.
func (d *Document) Render() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return markup.Render(d.root)
}

// Elements returns the connected elements in document order.
func (d *Document) Elements() []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Element
	markup.Walk(d.root, func(n *html.Node) bool {
		if e, ok := d.elements[n]; ok && e.connected {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Element returns the element for node, or nil if node is not an upgraded
// i-html node.
func (d *Document) Element(node *html.Node) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.elements[node]
}

// ElementByID returns the connected element whose id is id.
func (d *Document) ElementByID(id string) *Element {
	n := d.byID(id)
	if n == nil {
		return nil
	}
	return d.Element(n)
}

// Query returns the nodes matching a CSS selector, in document order.
func (d *Document) Query(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sel.MatchAll(d.root), nil
}

// QueryElements returns the connected elements matching a CSS selector.
func (d *Document) QueryElements(selector string) ([]*Element, error) {
	nodes, err := d.Query(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Element
	for _, n := range nodes {
		if e, ok := d.elements[n]; ok && e.connected {
			out = append(out, e)
		}
	}
	return out, nil
}

// AppendHTML parses markup as a fragment and appends it to parent. Any
// i-html elements in it are upgraded and connected.
func (d *Document) AppendHTML(ctx context.Context, parent *html.Node, fragment string) error {
	return d.do(ctx, func() error {
		scope := parent
		if parent.Type != html.ElementNode {
			scope = nil
		}
		d.mu.Lock()
		nodes, err := html.ParseFragment(strings.NewReader(fragment), scope)
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to parse fragment: %w", err)
		}
		for _, n := range nodes {
			parent.AppendChild(n)
		}
		connected := d.attached(parent)
		d.mu.Unlock()

		if connected {
			for _, n := range nodes {
				d.upgradeTree(n)
			}
		}
		return nil
	})
}

// Remove detaches node from the document. Elements inside it are
// disconnected, which aborts their loads.
func (d *Document) Remove(ctx context.Context, node *html.Node) error {
	return d.do(ctx, func() error {
		d.mu.Lock()
		if d.active != nil && markup.Contains(node, d.active) {
			d.active = nil
		}
		markup.Detach(node)
		d.mu.Unlock()

		d.disconnectTree(node)
		return nil
	})
}

// Focus makes node the active element. It reports false if node is not
// part of the document.
func (d *Document) Focus(node *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.attached(node) {
		return false
	}
	d.active = node
	return true
}

// Blur clears the active element.
func (d *Document) Blur() {
	d.mu.Lock()
	d.active = nil
	d.mu.Unlock()
}

// ActiveElement returns the focused node, or nil.
func (d *Document) ActiveElement() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// ReportVisibility records viewport geometry for node (or the element that
// contains it): ratio is the visible fraction and offset the distance in
// pixels below the viewport. Lazy elements near the viewport start loading.
func (d *Document) ReportVisibility(node *html.Node, ratio, offset float64) {
	d.mu.RLock()
	target := markup.Closest(node, func(n *html.Node) bool {
		_, ok := d.elements[n]
		return ok
	})
	d.mu.RUnlock()
	if target == nil {
		return
	}
	d.observer.Report(target, ratio, offset)
}

// Reveal reports node as fully visible.
func (d *Document) Reveal(node *html.Node) {
	d.ReportVisibility(node, 1, 0)
}

// Settle blocks until no element is loading. Streaming elements count as
// settled once their stream is open. Pending refresh timers do not count.
func (d *Document) Settle(ctx context.Context) error {
	for {
		if err := d.do(ctx, func() error { return nil }); err != nil {
			return err
		}
		idle := d.idleChan()
		if idle == nil {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close disconnects every element, stops the task loop and releases idle
// connections. Close is idempotent and must not be called from a [Listener].
func (d *Document) Close() error {
	d.closeOnce.Do(func() {
		d.loop.Post(func() { d.disconnectTree(d.root) })
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.loop.Do(ctx, func() {})

		d.loop.Stop()
		d.client.Close()
		d.logger.Debug("document closed", "url", d.url.String())
	})
	return nil
}

// do runs fn on the loop and waits for its result.
func (d *Document) do(ctx context.Context, fn func() error) error {
	var result error
	err := d.loop.Do(ctx, func() { result = fn() })
	if errors.Is(err, loop.ErrStopped) {
		return ErrClosed
	}
	if err != nil {
		return err
	}
	return result
}

// upgradeTree connects every i-html element at or below n, in document
// order. Runs on the loop.
func (d *Document) upgradeTree(n *html.Node) {
	var found []*Element
	d.mu.Lock()
	markup.Walk(n, func(c *html.Node) bool {
		if !markup.IsElement(c, TagName) || c.Namespace != "" {
			return true
		}
		e, ok := d.elements[c]
		if !ok {
			e = &Element{doc: d, node: c}
			d.elements[c] = e
		}
		found = append(found, e)
		return true
	})
	d.mu.Unlock()

	for _, e := range found {
		e.connect()
	}
}

// disconnectTree disconnects every element at or below n. Runs on the loop.
func (d *Document) disconnectTree(n *html.Node) {
	var found []*Element
	d.mu.RLock()
	markup.Walk(n, func(c *html.Node) bool {
		if e, ok := d.elements[c]; ok {
			found = append(found, e)
		}
		return true
	})
	d.mu.RUnlock()

	for _, e := range found {
		e.disconnect()
	}
}

// attached reports whether n is in the document tree. Caller holds d.mu.
func (d *Document) attached(n *html.Node) bool {
	return markup.Contains(d.root, n)
}

// byID finds the first element with the given id.
func (d *Document) byID(id string) *html.Node {
	if id == "" {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.findAttr("id", id)
}

// findAttr returns the first element whose attribute key equals val.
// Caller holds d.mu.
func (d *Document) findAttr(key, val string) *html.Node {
	var found *html.Node
	markup.Walk(d.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode {
			if v, ok := markup.Attr(n, key); ok && v == val {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// resolve makes raw absolute against the page URL.
func (d *Document) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return d.url.ResolveReference(ref), nil
}

// sameOrigin reports whether u shares the page's scheme, host and port.
func (d *Document) sameOrigin(u *url.URL) bool {
	return origin(u) == origin(d.url)
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http", "ws":
			port = "80"
		case "https", "wss":
			port = "443"
		}
	}
	return scheme + "://" + host + ":" + port
}

func (d *Document) begin() {
	d.settleMu.Lock()
	d.pending++
	d.settleMu.Unlock()
}

func (d *Document) end() {
	d.settleMu.Lock()
	defer d.settleMu.Unlock()
	d.pending--
	if d.pending == 0 && d.idle != nil {
		close(d.idle)
		d.idle = nil
	}
}

// idleChan returns a channel closed once nothing is pending, or nil if
// nothing is pending now.
func (d *Document) idleChan() <-chan struct{} {
	d.settleMu.Lock()
	defer d.settleMu.Unlock()
	if d.pending == 0 {
		return nil
	}
	if d.idle == nil {
		d.idle = make(chan struct{})
	}
	return d.idle
}
