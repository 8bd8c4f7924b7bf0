package sanitize

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/markup"
)

// ElementTag is the local name of the include element itself.
const ElementTag = "i-html"

// Token is one allow-list capability.
type Token uint8

const (
	TokenRefresh Token = 1 << iota
	TokenIframe
	TokenElement
	TokenMedia
	TokenScript
	TokenStyle
	TokenCrossOrigin
)

// tokenNames lists tokens in their canonical order.
var tokenNames = []struct {
	token Token
	name  string
}{
	{TokenRefresh, "refresh"},
	{TokenIframe, "iframe"},
	{TokenElement, ElementTag},
	{TokenMedia, "media"},
	{TokenScript, "script"},
	{TokenStyle, "style"},
	{TokenCrossOrigin, "cross-origin"},
}

// All is the set produced by the "*" wildcard.
const All = TokenRefresh | TokenIframe | TokenElement | TokenMedia | TokenScript | TokenStyle | TokenCrossOrigin

// Allow is a set of allow-list tokens.
type Allow uint8

// ParseAllow parses a space-separated allow attribute. "*" expands to every
// token; unknown tokens are dropped.
func ParseAllow(raw string) Allow {
	var set Allow
	for _, field := range strings.Fields(strings.ToLower(raw)) {
		if field == "*" {
			return Allow(All)
		}
		for _, tn := range tokenNames {
			if tn.name == field {
				set |= Allow(tn.token)
				break
			}
		}
	}
	return set
}

// Has reports whether t is in the set.
func (a Allow) Has(t Token) bool {
	return a&Allow(t) != 0
}

// Tokens returns the token names in canonical order.
func (a Allow) Tokens() []string {
	var out []string
	for _, tn := range tokenNames {
		if a.Has(tn.token) {
			out = append(out, tn.name)
		}
	}
	return out
}

// String returns the canonical attribute form of the set.
func (a Allow) String() string {
	return strings.Join(a.Tokens(), " ")
}

// Removed counts removed subtrees by the token that would have allowed them.
type Removed map[string]int

// Clean removes, in place, every subtree under root whose element requires a
// token missing from allow:
//   - iframe: iframe
//   - i-html: nested include elements
//   - script: script
//   - style: style and stylesheet links
//   - media: img, picture, video, audio, object
//
// Matching uses local names and ignores namespaces, so SVG script and style
// elements are removed as well.
func Clean(root *html.Node, allow Allow) Removed {
	removed := Removed{}
	markup.Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		token, ok := required(n)
		if !ok || allow.Has(token) {
			return true
		}
		markup.Detach(n)
		removed[nameOf(token)]++
		return false
	})
	return removed
}

// required returns the token an element needs to survive sanitization.
func required(n *html.Node) (Token, bool) {
	switch strings.ToLower(n.Data) {
	case "iframe":
		return TokenIframe, true
	case ElementTag:
		return TokenElement, true
	case "script":
		return TokenScript, true
	case "style":
		return TokenStyle, true
	case "link":
		if isStylesheet(n) {
			return TokenStyle, true
		}
	case "img", "picture", "video", "audio", "object":
		return TokenMedia, true
	}
	return 0, false
}

func isStylesheet(n *html.Node) bool {
	rel, _ := markup.Attr(n, "rel")
	for _, v := range strings.Fields(strings.ToLower(rel)) {
		if v == "stylesheet" {
			return true
		}
	}
	return false
}

func nameOf(t Token) string {
	for _, tn := range tokenNames {
		if tn.token == t {
			return tn.name
		}
	}
	return ""
}
