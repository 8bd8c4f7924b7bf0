package refresh

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/markup"
)

// Header is the HTTP response header carrying a refresh directive.
const Header = "Refresh"

// MaxDelay is the largest delay a timer accepts (2^31-1 milliseconds).
// Directives at or beyond it never fire.
const MaxDelay = time.Duration(math.MaxInt32) * time.Millisecond

// ErrInvalid is returned for values that do not start with a delay.
var ErrInvalid = errors.New("invalid refresh directive")

// Directive is a parsed "<delay>[; url=<url>]" value.
type Directive struct {
	// Delay is the whole number of time units to wait. Never negative.
	Delay float64

	// URL is the unresolved follow-up URL; empty means reload the same URL.
	URL string
}

// After converts the delay to a duration using unit as one delay step.
// ok is false when the result reaches [MaxDelay].
func (d Directive) After(unit time.Duration) (wait time.Duration, ok bool) {
	ms := d.Delay * float64(unit) / float64(time.Millisecond)
	if ms >= float64(math.MaxInt32) {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// Parse parses a refresh header or meta content value.
//
// The delay is the leading run of digits (a fractional part is accepted and
// ignored). It may be followed by ";" or "," and an optional url= clause
// whose value may be quoted.
func Parse(raw string) (Directive, error) {
	s := strings.TrimLeft(raw, " \t\n\f\r")

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	digits := s[:end]
	if digits == "" && !strings.HasPrefix(s, ".") {
		return Directive{}, ErrInvalid
	}
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}

	var d Directive
	if digits != "" {
		n, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return Directive{}, ErrInvalid
		}
		d.Delay = n
	}

	rest := strings.TrimLeft(s[end:], " \t\n\f\r")
	if rest == "" {
		return d, nil
	}
	if rest[0] != ';' && rest[0] != ',' {
		// garbage after the delay; the delay alone still applies
		return d, nil
	}
	rest = strings.TrimLeft(rest[1:], " \t\n\f\r")

	if len(rest) >= 3 && strings.EqualFold(rest[:3], "url") {
		after := strings.TrimLeft(rest[3:], " \t\n\f\r")
		if strings.HasPrefix(after, "=") {
			rest = strings.TrimLeft(after[1:], " \t\n\f\r")
		}
	}

	if rest != "" && (rest[0] == '"' || rest[0] == '\'') {
		quote := rest[0]
		rest = rest[1:]
		if i := strings.IndexByte(rest, quote); i >= 0 {
			rest = rest[:i]
		}
	}
	d.URL = strings.TrimSpace(rest)
	return d, nil
}

// FromMeta returns the content of the first <meta http-equiv="refresh">
// element under root.
func FromMeta(root *html.Node) (string, bool) {
	var (
		content string
		found   bool
	)
	markup.Walk(root, func(n *html.Node) bool {
		if found {
			return false
		}
		if !markup.IsElement(n, "meta") {
			return true
		}
		equiv, _ := markup.Attr(n, "http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		if c, ok := markup.Attr(n, "content"); ok {
			content, found = c, true
		}
		return !found
	})
	return content, found
}

// Lookup returns the directive announced by a response: the header wins,
// then a meta element in the parsed body. ok is false when neither carries
// a valid directive.
func Lookup(header string, body *html.Node) (Directive, bool) {
	if strings.TrimSpace(header) != "" {
		d, err := Parse(header)
		return d, err == nil
	}
	if body == nil {
		return Directive{}, false
	}
	content, found := FromMeta(body)
	if !found {
		return Directive{}, false
	}
	d, err := Parse(content)
	return d, err == nil
}
