package ihtml

import "errors"

// Load failures. Errors delivered through [EventError] events and returned
// by [Element.Load] wrap exactly one of these, so callers can test them with
// errors.Is.
var (
	// ErrPolicy is returned for a cross-origin URL when the element's allow
	// list lacks the cross-origin token. No request is sent.
	ErrPolicy = errors.New("cross-origin load not allowed")

	// ErrNegotiation is returned when the response media type belongs to a
	// different family than the element accepts, or when an event stream
	// handshake fails.
	ErrNegotiation = errors.New("media type negotiation failed")

	// ErrContentType is returned when the response media type is missing or
	// unrecognized, or when an XML body is malformed.
	ErrContentType = errors.New("unsupported content type")

	// ErrNetwork is returned for transport failures and non-2xx responses.
	ErrNetwork = errors.New("network error")
)

// ErrClosed is returned by document operations after [Document.Close].
var ErrClosed = errors.New("document closed")
