// Package refresh parses declarative refresh directives.
//
// A directive comes from a Refresh response header or from a
// <meta http-equiv="refresh"> element in a parsed body, and has the form
// "<delay>[; url=<url>]". The caller decides what a delay unit is.
package refresh
