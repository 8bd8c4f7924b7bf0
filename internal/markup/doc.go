// Package markup parses response payloads into node trees and provides the
// small set of tree helpers the element runtime needs.
//
// This package is internal to ihtml. Every payload family ends up as a
// golang.org/x/net/html node tree, so selection, sanitization and insertion
// work the same way for HTML, XML, SVG and plain text.
package markup
