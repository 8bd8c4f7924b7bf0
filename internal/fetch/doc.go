// Package fetch provides the HTTP client used by ihtml elements.
//
// This package is internal to ihtml. It wraps net/http with connection
// pooling, HTTP/2, a response size limit and a cookie jar that is attached
// only to credentialed requests.
//
// The main components are:
//
//   - [Client]: request execution for one-shot loads and long-lived streams
//   - [Response]: a fully read response with headers and timing
package fetch
