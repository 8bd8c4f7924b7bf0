package ihtml

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// EventType names a lifecycle event dispatched on an [Element].
type EventType string

const (
	// EventLoadStart fires one tick after a new attempt starts. Its Request
	// may still be modified by listeners; it is sent afterwards.
	EventLoadStart EventType = "loadstart"

	// EventOpen fires when an event stream handshake completes.
	EventOpen EventType = "open"

	// EventBeforeInsert fires with the candidate nodes before insertion.
	// It is cancelable.
	EventBeforeInsert EventType = "beforeinsert"

	// EventInserted fires with the element's children after insertion.
	EventInserted EventType = "inserted"

	// EventLoad fires when an attempt completes successfully.
	EventLoad EventType = "load"

	// EventError fires when an attempt fails. Err is set.
	EventError EventType = "error"

	// EventLoadEnd always follows EventLoad or EventError.
	EventLoadEnd EventType = "loadend"
)

// Event is delivered to listeners. Events never bubble: they are seen by the
// target element's listeners and then by document observers.
type Event struct {
	Type   EventType
	Target *Element

	// Request is the outgoing request (loadstart only).
	Request *http.Request

	// Nodes holds the candidate nodes (beforeinsert) or the element's final
	// children (inserted). Listeners must not retain them past the call.
	Nodes []*html.Node

	// Err is the failure (error only).
	Err error

	cancelable       bool
	defaultPrevented bool
}

// Cancelable reports whether [Event.PreventDefault] has any effect.
func (ev *Event) Cancelable() bool {
	return ev.cancelable
}

// PreventDefault cancels the event's default action if it is cancelable.
func (ev *Event) PreventDefault() {
	if ev.cancelable {
		ev.defaultPrevented = true
	}
}

// DefaultPrevented reports whether a listener cancelled the event.
func (ev *Event) DefaultPrevented() bool {
	return ev.defaultPrevented
}

// Listener handles an event. Listeners run on the document's task loop and
// must not block; they may change attributes or call [Element.Trigger] but
// must not call [Element.Load], [Document.Settle] or [Document.Close].
type Listener func(*Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// listeners is a per-element registry keyed by event type.
type listeners struct {
	mu     sync.Mutex
	nextID uint64
	byType map[EventType][]listenerEntry
}

func (l *listeners) add(t EventType, fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byType == nil {
		l.byType = make(map[EventType][]listenerEntry)
	}
	l.nextID++
	id := l.nextID
	l.byType[t] = append(l.byType[t], listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(t, id) })
	}
}

func (l *listeners) remove(t EventType, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.byType[t]
	for i, e := range entries {
		if e.id == id {
			// copy so a snapshot taken by an in-progress dispatch stays intact
			next := make([]listenerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			l.byType[t] = append(next, entries[i+1:]...)
			return
		}
	}
}

func (l *listeners) snapshot(t EventType) []listenerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byType[t]
}

// dispatch delivers ev to the element's listeners, then to document
// observers. It must be called on the loop without the document lock held.
func (e *Element) dispatch(ev *Event) {
	ev.Target = e
	for _, entry := range e.listeners.snapshot(ev.Type) {
		invokeListenerSafe(entry.fn, ev, e.doc.logger)
	}
	for _, observe := range e.doc.observers {
		invokeListenerSafe(Listener(observe), ev, e.doc.logger)
	}
}

// invokeListenerSafe calls a listener with panic recovery. Panics are logged
// with a correlation ID and do not propagate.
func invokeListenerSafe(fn Listener, ev *Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panicked",
				"correlation_id", uuid.NewString(),
				"event", string(ev.Type),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(ev)
}
