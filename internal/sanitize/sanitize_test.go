package sanitize

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/markup"
)

func TestParseAllow(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"script", "script"},
		{"style script", "script style"},
		{"  SCRIPT   media ", "media script"},
		{"bogus refresh", "refresh"},
		{"*", "refresh iframe i-html media script style cross-origin"},
		{"script *", "refresh iframe i-html media script style cross-origin"},
		{"i-html cross-origin", "i-html cross-origin"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseAllow(tt.raw).String(); got != tt.want {
				t.Errorf("ParseAllow(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAllow_Has(t *testing.T) {
	a := ParseAllow("script refresh")
	if !a.Has(TokenScript) || !a.Has(TokenRefresh) {
		t.Error("missing parsed tokens")
	}
	if a.Has(TokenStyle) || a.Has(TokenCrossOrigin) {
		t.Error("unexpected tokens present")
	}
}

const dirty = `<body>
<p>keep</p>
<script>alert(1)</script>
<style>p{}</style>
<link rel="preload stylesheet" href="/x.css">
<link rel="icon" href="/i.png">
<iframe src="/f"></iframe>
<i-html src="/nested"></i-html>
<div><img src="/a.png"><picture></picture><video></video><audio></audio><object></object></div>
<svg><script>x</script><circle r="1"/></svg>
</body>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("html.Parse() error = %v", err)
	}
	return doc
}

func count(root *html.Node, name string) int {
	n := 0
	markup.Walk(root, func(c *html.Node) bool {
		if markup.IsElement(c, name) {
			n++
		}
		return true
	})
	return n
}

func TestClean_NothingAllowed(t *testing.T) {
	doc := parse(t, dirty)
	removed := Clean(doc, ParseAllow(""))

	for _, name := range []string{"script", "style", "iframe", "i-html", "img", "picture", "video", "audio", "object"} {
		if c := count(doc, name); c != 0 {
			t.Errorf("%d <%s> left after Clean", c, name)
		}
	}
	if c := count(doc, "link"); c != 1 {
		t.Errorf("link count = %d, want 1 (the icon)", c)
	}
	if count(doc, "p") != 1 || count(doc, "circle") != 1 {
		t.Error("harmless content removed")
	}

	want := Removed{"script": 2, "style": 2, "iframe": 1, "i-html": 1, "media": 5}
	for k, v := range want {
		if removed[k] != v {
			t.Errorf("removed[%s] = %d, want %d", k, removed[k], v)
		}
	}
}

func TestClean_AllowedTokensKept(t *testing.T) {
	tests := []struct {
		allow string
		keep  string
		gone  string
	}{
		{allow: "script", keep: "script", gone: "style"},
		{allow: "style", keep: "style", gone: "script"},
		{allow: "media", keep: "img", gone: "iframe"},
		{allow: "iframe", keep: "iframe", gone: "img"},
		{allow: "i-html", keep: "i-html", gone: "script"},
	}

	for _, tt := range tests {
		t.Run(tt.allow, func(t *testing.T) {
			doc := parse(t, dirty)
			Clean(doc, ParseAllow(tt.allow))
			if count(doc, tt.keep) == 0 {
				t.Errorf("<%s> removed despite allow=%q", tt.keep, tt.allow)
			}
			if count(doc, tt.gone) != 0 {
				t.Errorf("<%s> kept despite allow=%q", tt.gone, tt.allow)
			}
		})
	}
}

func TestClean_Wildcard(t *testing.T) {
	doc := parse(t, dirty)
	removed := Clean(doc, ParseAllow("*"))
	if len(removed) != 0 {
		t.Errorf("removed = %v, want nothing", removed)
	}
}
