package ihtml

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/fetch"
	"github.com/jpalmerr/ihtml/internal/markup"
	"github.com/jpalmerr/ihtml/internal/media"
	"github.com/jpalmerr/ihtml/internal/refresh"
	"github.com/jpalmerr/ihtml/internal/sanitize"
)

// payload is a negotiated and parsed response, ready for insertion.
type payload struct {
	url     *url.URL
	doc     *html.Node
	refresh string
}

// prepare validates a response and parses its body. It runs off the loop
// and touches no element state.
func prepare(accept string, resp *fetch.Response) (*payload, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}

	family, err := media.Negotiate(accept, resp.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, media.ErrMismatch):
		return nil, fmt.Errorf("%w: %w", ErrNegotiation, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrContentType, err)
	}

	doc, err := markup.Parse(family, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentType, err)
	}

	u, err := url.Parse(resp.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid response url: %w", ErrNetwork, err)
	}

	return &payload{url: u, doc: doc, refresh: resp.Header.Get(refresh.Header)}, nil
}

// apply runs the loop half of the pipeline for a one-shot response: refresh
// scheduling, sanitization, extraction and insertion.
func (e *Element) apply(a *attempt, p *payload) error {
	allow := e.allowSet()

	if d, ok := refresh.Lookup(p.refresh, p.doc); ok {
		if allow.Has(sanitize.TokenRefresh) {
			e.scheduleRefresh(d, p.url)
		} else {
			e.doc.logger.Debug("refresh directive ignored, token not allowed", "url", a.url.String())
		}
	}

	e.insert(p.doc, allow)
	return nil
}

// insert sanitizes doc, extracts the target nodes and merges them into the
// element's children.
func (e *Element) insert(doc *html.Node, allow sanitize.Allow) {
	removed := sanitize.Clean(doc, allow)
	if len(removed) > 0 {
		e.doc.tel.Sanitized(removed)
	}

	_, sel := e.selector()
	nodes := sel.MatchAll(doc)

	before := &Event{Type: EventBeforeInsert, Nodes: nodes, cancelable: true}
	e.dispatch(before)
	if before.DefaultPrevented() || len(nodes) == 0 {
		return
	}

	// read before locking: attribute getters take d.mu themselves
	mode := e.Insert()

	d := e.doc
	d.mu.Lock()
	if !e.connected {
		d.mu.Unlock()
		return
	}
	focused := d.active

	var dropped []*html.Node
	switch mode {
	case InsertAppend:
		for _, n := range nodes {
			markup.Detach(n)
			e.node.AppendChild(n)
		}
	case InsertPrepend:
		ref := e.node.FirstChild
		for _, n := range nodes {
			markup.Detach(n)
			e.node.InsertBefore(n, ref)
		}
	default:
		dropped = markup.Children(e.node)
		for _, c := range dropped {
			e.node.RemoveChild(c)
		}
		for _, n := range nodes {
			markup.Detach(n)
			e.node.AppendChild(n)
		}
	}

	if d.active != nil && !d.attached(d.active) {
		d.active = nil
	}
	if d.active != focused && focused != nil && d.attached(focused) {
		d.active = focused
	}
	d.mu.Unlock()

	for _, n := range dropped {
		d.disconnectTree(n)
	}
	for _, n := range nodes {
		d.upgradeTree(n)
	}

	d.mu.RLock()
	children := markup.Children(e.node)
	d.mu.RUnlock()
	e.dispatch(&Event{Type: EventInserted, Nodes: children})
}
