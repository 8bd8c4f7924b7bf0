// Package preview serves a live view of a page with i-html elements.
//
// A [Preview] opens the page as an [ihtml.Document], records a snapshot of
// every element on each lifecycle event, and serves:
//
//   - GET /: the page as currently rendered
//   - GET /inspect: an inspector listing every element's state
//   - GET /api/elements: element snapshots as JSON
//   - GET /api/sse: snapshot updates as Server-Sent Events
//   - GET /metrics: load metrics in the Prometheus format
//
// Streaming elements keep updating the rendered page for as long as the
// preview runs.
package preview
