package ihtml

import (
	"errors"
	"fmt"
	"io"

	"github.com/jpalmerr/ihtml/internal/markup"
	"github.com/jpalmerr/ihtml/internal/media"
	"github.com/jpalmerr/ihtml/internal/sse"
)

// openStream performs the event-stream handshake off the loop.
func (e *Element) openStream(a *attempt, withCredentials bool) {
	resp, err := e.doc.client.Open(a.request, withCredentials)
	if err != nil {
		e.doc.loop.Post(func() {
			if e.live(a) {
				e.complete(a, fmt.Errorf("%w: %w", ErrNetwork, err))
			}
		})
		return
	}

	stream, err := sse.Accept(resp)
	if err != nil {
		e.doc.loop.Post(func() {
			if e.live(a) {
				e.complete(a, fmt.Errorf("%w: %w", ErrNegotiation, err))
			}
		})
		return
	}

	if !e.doc.loop.Post(func() { e.streamOpened(a, stream) }) {
		_ = stream.Close()
	}
}

// streamOpened moves the element to streaming and starts reading messages.
func (e *Element) streamOpened(a *attempt, stream *sse.Stream) {
	if !e.live(a) {
		_ = stream.Close()
		return
	}
	a.stream = stream
	e.setState(StateStreaming)
	e.release(a) // an open stream counts as settled
	e.dispatch(&Event{Type: EventOpen})
	a.span.Event("open")

	if !e.live(a) {
		return
	}
	go e.readStream(a, stream)
}

// readStream delivers each message to the loop until the stream ends.
func (e *Element) readStream(a *attempt, stream *sse.Stream) {
	for {
		msg, err := stream.Next()
		if err != nil {
			e.doc.loop.Post(func() {
				if !e.live(a) {
					return
				}
				if errors.Is(err, io.EOF) {
					e.complete(a, nil)
					return
				}
				e.complete(a, fmt.Errorf("%w: stream: %w", ErrNetwork, err))
			})
			return
		}

		if !e.doc.loop.Post(func() { e.streamMessage(a, msg) }) {
			return
		}
	}
}

// streamMessage parses one message payload as HTML and inserts it. Named
// events are ignored.
func (e *Element) streamMessage(a *attempt, msg sse.Event) {
	if !e.live(a) {
		return
	}
	// only unnamed events reach a message listener
	if msg.Type != "message" {
		e.doc.logger.Debug("named stream event ignored", "url", a.url.String(), "event", msg.Type)
		return
	}
	doc, err := markup.Parse(media.FamilyHTML, []byte(msg.Data))
	if err != nil {
		e.doc.logger.Warn("stream message discarded", "url", a.url.String(), "error", err.Error())
		return
	}
	e.doc.tel.StreamMessage()
	e.insert(doc, e.allowSet())
}
