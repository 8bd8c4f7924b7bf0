package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets (or adds) the attribute key on n and returns the previous value.
func SetAttr(n *html.Node, key, val string) (old string, existed bool) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			old = a.Val
			n.Attr[i].Val = val
			return old, true
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	return "", false
}

// RemoveAttr deletes the attribute key from n and returns its previous value.
func RemoveAttr(n *html.Node, key string) (old string, existed bool) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return a.Val, true
		}
	}
	return "", false
}

// IsElement reports whether n is an element with the given local name,
// compared case-insensitively and regardless of namespace.
func IsElement(n *html.Node, name string) bool {
	return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, name)
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Children returns a snapshot of n's child nodes.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Contains reports whether n is ancestor or ancestor's descendant.
func Contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Walk calls fn for n and each of its descendants in document order. If fn
// returns false the node's children are skipped. fn must not detach nodes
// other than the one it is called with.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Closest returns n or its nearest ancestor element accepted by match.
func Closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
	}
	return nil
}

// Render serializes n and its subtree.
func Render(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// InnerHTML serializes n's children.
func InnerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return ""
		}
	}
	return b.String()
}
