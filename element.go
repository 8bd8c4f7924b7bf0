package ihtml

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/net/html"

	"github.com/jpalmerr/ihtml/internal/loop"
	"github.com/jpalmerr/ihtml/internal/markup"
	"github.com/jpalmerr/ihtml/internal/sanitize"
)

// Commands accepted by [Element.Command].
const (
	CommandLoad = "--load"
	CommandStop = "--stop"
)

// Element is an upgraded i-html node.
//
// Attributes are the element's durable configuration and may be read or
// written from any goroutine. Everything else (attempts, refresh timers,
// DOM insertion and event dispatch) happens on the owning document's task
// loop.
type Element struct {
	doc  *Document
	node *html.Node

	// guarded by doc.mu
	state     State
	connected bool

	// owned by the loop
	attempt      *attempt
	generation   uint64
	refreshTimer *loop.Timer

	allowMu     sync.Mutex
	allowRaw    string
	allowParsed sanitize.Allow
	allowCached bool

	listeners listeners
}

// Node returns the element's node. Read it only from listeners or after
// [Document.Settle]; the document mutates it on its task loop.
func (e *Element) Node() *html.Node {
	return e.node
}

// Document returns the owning document.
func (e *Element) Document() *Document {
	return e.doc
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return e.attr("id")
}

// State returns the current lifecycle state.
func (e *Element) State() State {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.state
}

// Connected reports whether the element is part of the document.
func (e *Element) Connected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.connected
}

// InnerHTML serializes the element's children.
func (e *Element) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return markup.InnerHTML(e.node)
}

// AddEventListener registers fn for events of type t and returns a function
// that removes it.
func (e *Element) AddEventListener(t EventType, fn Listener) (remove func()) {
	return e.listeners.add(t, fn)
}

// Trigger starts a load of rawURL, or of src when rawURL is empty. It
// returns immediately; the outcome is reported through events.
func (e *Element) Trigger(rawURL string) {
	e.doc.loop.Post(func() {
		_, _ = e.triggerLoad(rawURL)
	})
}

// Load starts a load like [Element.Trigger] and waits for the attempt it
// started or joined. It returns nil on success, when there is nothing to
// load, and when the attempt is superseded or stopped. For event streams it
// returns once the server closes the stream.
//
// Load must not be called from a [Listener].
func (e *Element) Load(ctx context.Context, rawURL string) error {
	result := make(chan error, 1)
	err := e.doc.loop.Do(ctx, func() {
		a, err := e.triggerLoad(rawURL)
		switch {
		case err != nil:
			result <- err
		case a == nil:
			result <- nil
		default:
			a.waiters = append(a.waiters, result)
		}
	})
	if err != nil {
		if errors.Is(err, loop.ErrStopped) {
			return ErrClosed
		}
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Command runs a scripting command: [CommandLoad] triggers a load,
// [CommandStop] cancels the in-flight attempt and any pending refresh.
// It reports whether cmd was recognized.
func (e *Element) Command(cmd string) bool {
	switch cmd {
	case CommandLoad:
		e.Trigger("")
		return true
	case CommandStop:
		e.doc.loop.Post(func() {
			e.abort()
			e.cancelRefresh()
		})
		return true
	default:
		return false
	}
}

// connect runs when the element joins the document.
func (e *Element) connect() {
	e.doc.mu.Lock()
	if e.connected {
		e.doc.mu.Unlock()
		return
	}
	e.connected = true
	e.doc.mu.Unlock()

	switch e.Loading() {
	case LoadingEager:
		_, _ = e.triggerLoad("")
	case LoadingLazy:
		e.observe()
	}
}

// disconnect runs when the element leaves the document.
func (e *Element) disconnect() {
	e.doc.mu.Lock()
	if !e.connected {
		e.doc.mu.Unlock()
		return
	}
	e.connected = false
	e.doc.mu.Unlock()

	e.doc.observer.Unobserve(e.node)
	e.abort()
	e.cancelRefresh()
}

// attributeChanged reacts to an attribute write.
func (e *Element) attributeChanged(name string) {
	if !e.Connected() {
		return
	}

	switch name {
	case AttrSrc, AttrAccept:
		switch e.Loading() {
		case LoadingEager:
			_, _ = e.triggerLoad("")
		case LoadingLazy:
			e.abort()
			e.observe()
		default:
			e.abort()
		}
	case AttrLoading:
		switch e.Loading() {
		case LoadingEager:
			e.doc.observer.Unobserve(e.node)
			_, _ = e.triggerLoad("")
		case LoadingLazy:
			e.observe()
		default:
			e.doc.observer.Unobserve(e.node)
		}
	}
}

// observe (re)starts lazy observation. The first qualifying intersection
// triggers one load.
func (e *Element) observe() {
	e.doc.observer.Observe(e.node, func() {
		// the posted trigger is pending work for Settle
		e.doc.begin()
		posted := e.doc.loop.Post(func() {
			defer e.doc.end()
			if e.Connected() && e.Loading() == LoadingLazy {
				_, _ = e.triggerLoad("")
			}
		})
		if !posted {
			e.doc.end()
		}
	})
}

func (e *Element) setState(s State) {
	e.doc.mu.Lock()
	e.state = s
	e.doc.mu.Unlock()
}
