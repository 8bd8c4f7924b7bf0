package ihtml

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/markup"
)

// Click handles a click on node as a capture-phase navigation listener.
//
// If node is inside an anchor whose target attribute names an i-html
// element (by id, then by name), the element loads the anchor's href and
// Click returns true: the caller must not navigate. Otherwise Click returns
// false and does nothing.
func (d *Document) Click(node *html.Node) bool {
	d.mu.RLock()
	anchor := markup.Closest(node, func(n *html.Node) bool {
		if !markup.IsElement(n, "a") && !markup.IsElement(n, "area") {
			return false
		}
		_, ok := markup.Attr(n, "href")
		return ok
	})
	if anchor == nil {
		d.mu.RUnlock()
		return false
	}
	target, _ := markup.Attr(anchor, "target")
	href, _ := markup.Attr(anchor, "href")
	e := d.namedElement(target)
	d.mu.RUnlock()

	if e == nil {
		return false
	}
	d.logger.Debug("navigation intercepted", "target", target, "url", href)
	e.Trigger(href)
	return true
}

// Submit handles submission of form as a capture-phase listener. submitter
// is the button that submitted it, or nil.
//
// The submitter's formtarget (else the form's target) names the element;
// the submitter's formaction (else the form's action, else the page URL)
// is loaded. Form fields are not encoded into the URL. Submit returns true
// when the submission was redirected into a load.
func (d *Document) Submit(form, submitter *html.Node) bool {
	if !markup.IsElement(form, "form") {
		return false
	}

	d.mu.RLock()
	target, ok := markup.Attr(submitter, "formtarget")
	if !ok {
		target, _ = markup.Attr(form, "target")
	}
	action, ok := markup.Attr(submitter, "formaction")
	if !ok {
		action, _ = markup.Attr(form, "action")
	}
	e := d.namedElement(target)
	d.mu.RUnlock()

	if e == nil {
		return false
	}
	if strings.TrimSpace(action) == "" {
		action = d.url.String()
	}
	d.logger.Debug("form submission intercepted", "target", target, "url", action)
	e.Trigger(action)
	return true
}

// namedElement resolves a navigation target name to a connected element:
// first the element with that id, then an i-html element with that name.
// Caller holds d.mu.
func (d *Document) namedElement(name string) *Element {
	if name == "" {
		return nil
	}
	if n := d.findAttr("id", name); n != nil {
		if e, ok := d.elements[n]; ok && e.connected {
			return e
		}
		return nil
	}

	var found *Element
	markup.Walk(d.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if e, ok := d.elements[n]; ok && e.connected {
			if v, _ := markup.Attr(n, "name"); v == name {
				found = e
				return false
			}
		}
		return true
	})
	return found
}
