// Package telemetry records Prometheus metrics and OpenTelemetry spans for
// element load attempts.
//
// Metrics (all prefixed "ihtml_"):
//   - loads_total{outcome}: attempts by outcome (loaded, error, aborted, policy)
//   - load_duration_seconds{mode}: attempt duration, fetch or stream
//   - stream_messages_total: event-stream messages inserted
//   - sanitized_nodes_total{token}: subtrees removed for a missing token
//   - inflight_loads: attempts currently running
package telemetry
