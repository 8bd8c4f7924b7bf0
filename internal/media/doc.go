// Package media validates accept values and negotiates response media types.
//
// This package is internal to ihtml. Media types are grouped into families
// (plain, html, xml, svg, event-stream) by essence and structured-syntax
// suffix; negotiation compares the response family with the accepted one.
package media
