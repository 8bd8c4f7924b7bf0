// Package sse reads server-sent event streams.
//
// This package is internal to ihtml. It validates the handshake of an
// event-stream response and parses the line-oriented wire format into
// [Event] values. Reconnection is left to the caller.
package sse
