// Package ihtml implements the i-html hypermedia include element on a
// headless document.
//
// An i-html element fetches a remote document (HTML, XML, SVG, plain text
// or a server-sent event stream) and splices a selected part of it into its
// own children. Elements are configured entirely through attributes:
//
//	<i-html src="/fragments/cart" target="#cart" insert="replace"
//	        loading="lazy" allow="refresh media"></i-html>
//
// # Quick Start
//
// Open a page, wait for its includes, and render the result:
//
//	doc, err := ihtml.Open(ctx, "https://example.com/", ihtml.WithRevealAll())
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
// # Loading
//
// Every load goes through one entry point per element ([Element.Trigger] or
// the awaitable [Element.Load]). A new load cancels the in-flight one unless
// it targets the exact same URL, in which case the two are coalesced. Late
// responses of superseded attempts are discarded and never touch the tree.
//
// Responses are negotiated against the accept attribute, parsed, stripped of
// any subtree the allow list does not permit, filtered with the target
// selector and inserted according to the insert attribute. Refresh
// directives (header or meta) schedule follow-up loads when allowed.
//
// # Overrides
//
// [WithAttributeOverride] and [WithPageTransform] rewrite the parsed page
// before any element is upgraded, so an element whose src is overridden
// never requests its original source:
//
//	doc, err := ihtml.Open(ctx, pageURL,
//	    ihtml.WithAttributeOverride("#cart", "src", "/fragments/cart?debug=1"),
//	)
//
// # Events
//
// Elements dispatch loadstart, open, beforeinsert (cancelable), inserted,
// load, error and loadend. Register listeners with
// [Element.AddEventListener], or observe every element with [WithObserver].
// Failures wrap one of [ErrPolicy], [ErrNegotiation], [ErrContentType] or
// [ErrNetwork].
//
// # Concurrency
//
// Each [Document] runs one task loop. All element logic, tree mutation and
// event dispatch happen on that loop, one task at a time; network I/O runs
// on separate goroutines that post their results back. Attribute accessors
// and read methods may be called from any goroutine.
//
// # Architecture
//
// The internal packages are:
//
//   - internal/loop: the serial task loop and its timers
//   - internal/fetch: HTTP client with credentials modes
//   - internal/sse: event stream handshake and parser
//   - internal/media, internal/markup: negotiation and parsing
//   - internal/sanitize, internal/refresh, internal/intersect: allow list,
//     refresh directives and lazy loading
//   - internal/telemetry: Prometheus metrics and OpenTelemetry spans
//
// The preview package serves a live view of a document with an element
// inspector; cmd/ihtml wraps it and a render command in a CLI.
package ihtml
