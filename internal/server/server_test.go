package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/ihtml/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticPage string

func (p staticPage) Render() string { return string(p) }

func newTestServer(st store.Store) *Server {
	return NewServer(Config{Store: st, Logger: testLogger()})
}

func TestHandleSSE_InitialSnapshots(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.Snapshot{Key: "cart", State: "loaded"})
	ms.Update(store.Snapshot{Key: "feed", State: "streaming"})

	srv := newTestServer(ms)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	snaps := parseSSEEvents(rec.Body.String())
	if len(snaps) != 2 {
		t.Fatalf("received %d snapshots, want 2", len(snaps))
	}
	if snaps[0].Key != "cart" || snaps[1].State != "streaming" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	ms := store.NewMemoryStore()
	srv := newTestServer(ms)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	ms.Update(store.Snapshot{Key: "late", State: "loading"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if body := rec.Body.String(); !strings.Contains(body, `"key":"late"`) {
		t.Errorf("response should contain streamed update, got: %s", body)
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.Snapshot{Key: "cart"})
	srv := newTestServer(ms)

	serverCtx, serverCancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

func TestHandleSSE_NotSupported(t *testing.T) {
	srv := newTestServer(store.NewMemoryStore())
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header { return n.header }

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) { n.statusCode = statusCode }

func TestHandleSSE_Headers(t *testing.T) {
	srv := newTestServer(store.NewMemoryStore())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	srv.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx))

	want := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
}

func TestHandleElements(t *testing.T) {
	ms := store.NewMemoryStore()
	errMsg := "network failure"
	ms.Update(store.Snapshot{Key: "b", State: "error", Error: &errMsg})
	ms.Update(store.Snapshot{Key: "a", State: "loaded", Allow: []string{"script"}})
	srv := newTestServer(ms)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/elements", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got []store.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 || got[0].Key != "a" || got[1].Error == nil || *got[1].Error != errMsg {
		t.Errorf("elements = %+v", got)
	}
}

func TestHandleElements_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(store.NewMemoryStore())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/elements", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandlePage(t *testing.T) {
	srv := NewServer(Config{
		Store:  store.NewMemoryStore(),
		Page:   staticPage("<html><body><i-html>done</i-html></body></html>"),
		Logger: testLogger(),
	})

	tests := []struct {
		path     string
		wantCode int
	}{
		{path: "/", wantCode: http.StatusOK},
		{path: "/missing", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && !strings.Contains(rec.Body.String(), "<i-html>done</i-html>") {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestHandlePage_NoPageRedirects(t *testing.T) {
	srv := newTestServer(store.NewMemoryStore())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/inspect" {
		t.Errorf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandleInspector(t *testing.T) {
	assets := fstest.MapFS{
		"assets/index.html": {Data: []byte("<title>{{.Title}}</title>")},
	}

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "default title", want: "<title>ihtml preview</title>"},
		{name: "custom title", title: "Shop", want: "<title>Shop</title>"},
		{name: "escaped title", title: "<script>", want: "<title>&lt;script&gt;</title>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(Config{Store: store.NewMemoryStore(), Assets: assets, Title: tt.title, Logger: testLogger()})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect", nil))

			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleInspector_NoAssets(t *testing.T) {
	srv := newTestServer(store.NewMemoryStore())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ihtml_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	with := NewServer(Config{Store: store.NewMemoryStore(), Gatherer: reg, Logger: testLogger()})
	rec := httptest.NewRecorder()
	with.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ihtml_test_total 1") {
		t.Errorf("metrics body = %q", rec.Body.String())
	}

	without := newTestServer(store.NewMemoryStore())
	rec = httptest.NewRecorder()
	without.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without gatherer = %d, want 404", rec.Code)
	}
}

func TestStart_ServesAndShutsDown(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.Snapshot{Key: "cart", State: "loaded"})
	srv := newTestServer(ms)

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port := srv.Addr().(*net.TCPAddr).Port
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	resp, err := http.Get(base + "/api/elements")
	if err != nil {
		t.Fatalf("GET /api/elements error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	// an open SSE connection must end when the server shuts down
	sseResp, err := http.Get(base + "/api/sse")
	if err != nil {
		t.Fatalf("GET /api/sse error = %v", err)
	}
	defer sseResp.Body.Close()

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, sseResp.Body)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE stream not closed on shutdown")
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer ln.Close()

	srv := NewServer(Config{Store: store.NewMemoryStore(), Port: ln.Addr().(*net.TCPAddr).Port, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
}

// parseSSEEvents decodes the data lines of an SSE body.
func parseSSEEvents(body string) []store.Snapshot {
	var out []store.Snapshot
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var snap store.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err == nil {
			out = append(out, snap)
		}
	}
	return out
}
