package ihtml

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jpalmerr/ihtml/internal/loop"
	"github.com/jpalmerr/ihtml/internal/media"
	"github.com/jpalmerr/ihtml/internal/refresh"
	"github.com/jpalmerr/ihtml/internal/sanitize"
	"github.com/jpalmerr/ihtml/internal/sse"
	"github.com/jpalmerr/ihtml/internal/telemetry"
)

// attempt is one load of one URL. All fields are owned by the loop.
type attempt struct {
	generation uint64
	url        *url.URL
	accept     string
	request    *http.Request
	ctx        context.Context
	cancel     context.CancelFunc

	aborted bool
	settled bool
	counted bool

	stream  *sse.Stream
	waiters []chan error
	span    *telemetry.Attempt
}

// resolve delivers err to every waiter.
func (a *attempt) resolve(err error) {
	for _, w := range a.waiters {
		w <- err
	}
	a.waiters = nil
}

// live reports whether a is still the element's current attempt.
func (e *Element) live(a *attempt) bool {
	return e.attempt == a && !a.aborted
}

// triggerLoad is the single entry point for every load. It runs on the loop.
//
// It returns the attempt the call started or joined, nil when there is
// nothing to load, or an error for loads rejected before any request.
func (e *Element) triggerLoad(rawURL string) (*attempt, error) {
	if rawURL == "" {
		src, ok := e.Attribute(AttrSrc)
		if !ok {
			return nil, nil
		}
		rawURL = src
	}

	u, err := e.doc.resolve(rawURL)
	if err != nil {
		return nil, e.reject(fmt.Errorf("%w: invalid url %q: %w", ErrNetwork, rawURL, err), telemetry.OutcomeError)
	}

	if !e.doc.sameOrigin(u) && !e.allowSet().Has(sanitize.TokenCrossOrigin) {
		return nil, e.reject(fmt.Errorf("%w: %s", ErrPolicy, u), telemetry.OutcomePolicy)
	}

	// any trigger, coalesced or not, drops a pending refresh
	e.cancelRefresh()

	if a := e.attempt; a != nil && !a.aborted && !a.settled && a.url.String() == u.String() {
		e.doc.logger.Debug("load coalesced", "url", u.String())
		return a, nil
	}

	e.abort()

	accept := e.Accept()
	e.generation++
	a := &attempt{generation: e.generation, url: u, accept: accept}

	mode := "fetch"
	if media.IsEventStream(accept) {
		mode = "stream"
	}
	var parent context.Context
	parent, a.span = e.doc.tel.StartAttempt(context.Background(), u.String(), accept, mode)
	a.ctx, a.cancel = context.WithCancel(parent)

	req, err := http.NewRequestWithContext(a.ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		a.cancel()
		a.span.End(telemetry.OutcomeError, err)
		return nil, e.reject(fmt.Errorf("%w: %w", ErrNetwork, err), "")
	}
	for k, v := range e.doc.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", accept)
	a.request = req

	e.attempt = a
	a.counted = true
	e.doc.begin()
	e.setState(StateLoading)

	e.doc.loop.Post(func() {
		if !e.live(a) {
			return
		}
		e.dispatch(&Event{Type: EventLoadStart, Request: a.request})
		if !e.live(a) {
			return
		}
		a.span.Event("loadstart")

		withCreds := e.withCredentials(a.url)
		if mode == "stream" {
			go e.openStream(a, withCreds)
		} else {
			go e.fetch(a, withCreds)
		}
	})
	return a, nil
}

// reject fails a load before any request exists. Any in-flight attempt is
// superseded by the rejected trigger.
func (e *Element) reject(err error, outcome string) error {
	e.abort()
	e.cancelRefresh()
	if outcome != "" {
		e.doc.tel.Rejected(outcome)
	}
	e.doc.logger.Warn("load rejected", "error", err.Error())

	e.setState(StateError)
	e.dispatch(&Event{Type: EventError, Err: err})
	e.dispatch(&Event{Type: EventLoadEnd})
	return err
}

// abort cancels the current attempt without changing state. Waiters see nil.
func (e *Element) abort() {
	a := e.attempt
	if a == nil {
		return
	}
	e.attempt = nil
	if a.aborted {
		return
	}
	a.aborted = true
	a.cancel()
	_ = a.stream.Close()
	if !a.settled {
		a.span.End(telemetry.OutcomeAborted, nil)
	}
	e.release(a)
	a.resolve(nil)
	e.doc.logger.Debug("load aborted", "url", a.url.String())
}

// release gives back the attempt's slot in the document's pending count.
func (e *Element) release(a *attempt) {
	if a.counted {
		a.counted = false
		e.doc.end()
	}
}

// complete finishes a live attempt one tick later.
func (e *Element) complete(a *attempt, err error) {
	if a.settled {
		return
	}
	a.settled = true
	a.cancel()

	outcome := telemetry.OutcomeLoaded
	if err != nil {
		outcome = telemetry.OutcomeError
	}
	a.span.End(outcome, err)

	e.doc.loop.Post(func() {
		if a.aborted {
			return
		}
		if e.attempt == a {
			e.attempt = nil
		}

		if err != nil {
			e.doc.logger.Warn("load failed", "url", a.url.String(), "error", err.Error())
			e.setState(StateError)
			e.dispatch(&Event{Type: EventError, Err: err})
		} else {
			e.doc.logger.Debug("load completed", "url", a.url.String())
			e.setState(StateLoaded)
			e.dispatch(&Event{Type: EventLoad})
		}
		e.dispatch(&Event{Type: EventLoadEnd})

		e.release(a)
		a.resolve(err)
	})
}

// fetch performs a one-shot request off the loop and hands the response to
// the pipeline on the loop.
func (e *Element) fetch(a *attempt, withCredentials bool) {
	resp, err := e.doc.client.Do(a.request, withCredentials)
	var p *payload
	if err == nil {
		p, err = prepare(a.accept, resp)
	} else {
		err = fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	e.doc.loop.Post(func() {
		if !e.live(a) {
			return
		}
		if err == nil {
			err = e.apply(a, p)
		}
		e.complete(a, err)
	})
}

// cancelRefresh stops a pending refresh timer.
func (e *Element) cancelRefresh() {
	if e.refreshTimer != nil {
		e.refreshTimer.Stop()
		e.refreshTimer = nil
	}
}

// scheduleRefresh arms a follow-up load for a refresh directive found in
// a response from base.
func (e *Element) scheduleRefresh(d refresh.Directive, base *url.URL) {
	wait, ok := d.After(e.doc.refreshUnit)
	if !ok {
		e.doc.logger.Debug("refresh delay out of range, ignored", "url", base.String())
		return
	}

	next := base.String()
	if d.URL != "" {
		ref, err := url.Parse(d.URL)
		if err != nil {
			e.doc.logger.Warn("invalid refresh url", "url", d.URL, "error", err.Error())
			return
		}
		next = base.ResolveReference(ref).String()
	}

	e.cancelRefresh()
	var timer *loop.Timer
	timer = e.doc.loop.AfterFunc(wait, func() {
		if e.refreshTimer == timer {
			e.refreshTimer = nil
		}
		_, _ = e.triggerLoad(next)
	})
	e.refreshTimer = timer
	e.doc.logger.Debug("refresh scheduled", "url", next, "delay", wait.Round(time.Millisecond).String())
}
