// Package server provides the preview HTTP server.
//
// It serves the live rendered page at "/", an embedded inspector at
// "/inspect", element snapshots as JSON at "/api/elements", snapshot updates
// as Server-Sent Events at "/api/sse" and Prometheus metrics at "/metrics".
//
// The server shuts down gracefully when its start context is cancelled, with
// a 5-second timeout for in-flight requests.
package server
