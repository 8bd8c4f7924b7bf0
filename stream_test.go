package ihtml

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"testing"
	"time"
)

// eventStream writes messages as server-sent events, then waits for hold
// (nil means close immediately). closed is signalled when the handler exits.
func eventStream(messages []string, hold <-chan struct{}, closed chan<- struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if closed != nil {
			defer func() { closed <- struct{}{} }()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()

		for i, m := range messages {
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", i, m)
			flusher.Flush()
		}
		if hold == nil {
			return
		}
		select {
		case <-hold:
		case <-r.Context().Done():
		}
	}
}

func TestStream_MessagesInserted(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/events": eventStream([]string{"<p>1</p>", "<p>2</p>"}, nil, nil),
	})
	doc, rec := newDoc(t, f, `<i-html id="x" loading="none" accept="text/event-stream" insert="append"></i-html>`)
	e := element(t, doc, "x")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Load(ctx, "/events"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := e.InnerHTML(); got != "<p>1</p><p>2</p>" {
		t.Errorf("InnerHTML() = %q", got)
	}
	if e.State() != StateLoaded {
		t.Errorf("State() = %s, want loaded after the server closed", e.State())
	}

	want := []EventType{
		EventLoadStart, EventOpen,
		EventBeforeInsert, EventInserted,
		EventBeforeInsert, EventInserted,
		EventLoad, EventLoadEnd,
	}
	if got := rec.types("x"); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestStream_NamedEventsIgnored(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/events": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: ping\ndata: <p>ping</p>\n\n")
			fmt.Fprint(w, "data: <p>one</p>\n\n")
			fmt.Fprint(w, "event: message\ndata: <p>two</p>\n\n")
		},
	})
	doc, rec := newDoc(t, f, `<i-html id="x" loading="none" accept="text/event-stream" insert="append"></i-html>`)
	e := element(t, doc, "x")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Load(ctx, "/events"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := e.InnerHTML(); got != "<p>one</p><p>two</p>" {
		t.Errorf("InnerHTML() = %q, want %q", got, "<p>one</p><p>two</p>")
	}
	inserted := 0
	for _, typ := range rec.types("x") {
		if typ == EventInserted {
			inserted++
		}
	}
	if inserted != 2 {
		t.Errorf("inserted events = %d, want 2", inserted)
	}
}

func TestStream_RequestAcceptsEventStream(t *testing.T) {
	accept := make(chan string, 1)
	f := newFixture(t, map[string]http.HandlerFunc{
		"/events": func(w http.ResponseWriter, r *http.Request) {
			accept <- r.Header.Get("Accept")
			eventStream(nil, nil, nil)(w, r)
		},
	})
	doc, _ := newDoc(t, f, `<i-html id="x" src="/events" accept="text/event-stream"></i-html>`)
	element(t, doc, "x")

	select {
	case got := <-accept:
		if got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream never requested")
	}
}

func TestStream_SettledWhileOpen(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	f := newFixture(t, map[string]http.HandlerFunc{
		"/events": eventStream([]string{"<p>1</p>"}, hold, nil),
	})
	doc, _ := newDoc(t, f, `<i-html id="x" src="/events" accept="text/event-stream"></i-html>`)
	e := element(t, doc, "x")

	if e.State() != StateStreaming {
		t.Errorf("State() = %s, want streaming", e.State())
	}
	eventually(t, "first message", func() bool { return e.InnerHTML() == "<p>1</p>" })
}

func TestStream_Stop(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	closed := make(chan struct{}, 1)
	f := newFixture(t, map[string]http.HandlerFunc{
		"/events": eventStream(nil, hold, closed),
	})
	doc, rec := newDoc(t, f, `<i-html id="x" src="/events" accept="text/event-stream"></i-html>`)
	e := element(t, doc, "x")

	if !e.Command(CommandStop) {
		t.Fatal("Command(--stop) = false")
	}

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("server stream not closed after --stop")
	}
	settle(t, doc)

	if e.State() == StateError {
		t.Error("State() = error after --stop")
	}
	for _, typ := range rec.types("x") {
		if typ == EventError || typ == EventLoad {
			t.Errorf("unexpected %s after --stop", typ)
		}
	}
}

func TestStream_HandshakeFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "wrong type", handler: htmlHandler("<p>x</p>")},
		{name: "error status", handler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]http.HandlerFunc{"/events": tt.handler})
			doc, rec := newDoc(t, f, `<i-html id="x" loading="none" accept="text/event-stream"></i-html>`)
			e := element(t, doc, "x")

			err := e.Load(context.Background(), "/events")
			if !errors.Is(err, ErrNegotiation) {
				t.Fatalf("Load() error = %v, want ErrNegotiation", err)
			}
			if e.State() != StateError {
				t.Errorf("State() = %s, want error", e.State())
			}
			if slices.Contains(rec.types("x"), EventOpen) {
				t.Error("open dispatched for a failed handshake")
			}
		})
	}
}

func TestStream_ReplacedByFetch(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	closed := make(chan struct{}, 1)
	f := newFixture(t, map[string]http.HandlerFunc{
		"/events": eventStream(nil, hold, closed),
		"/page2":  htmlHandler("<p>static</p>"),
	})
	doc, _ := newDoc(t, f, `<i-html id="x" src="/events" accept="text/event-stream"></i-html>`)
	e := element(t, doc, "x")

	e.SetAccept("text/html")
	e.SetSrc("/page2")
	settle(t, doc)

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("stream not closed after reconfiguration")
	}
	if got := e.InnerHTML(); got != "<p>static</p>" {
		t.Errorf("InnerHTML() = %q", got)
	}
	if e.State() != StateLoaded {
		t.Errorf("State() = %s, want loaded", e.State())
	}
}
