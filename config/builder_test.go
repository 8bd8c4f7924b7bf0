package config

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/ihtml"
	"github.com/jpalmerr/ihtml/preview"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openWith builds a document from page using the options DocumentOptions
// produces, served by routes, and waits for it to settle.
func openWith(t *testing.T, cfg *Config, page PageConfig, body string, routes map[string]http.HandlerFunc) *ihtml.Document {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	opts := append([]ihtml.Option{ihtml.WithLogger(testLogger())}, DocumentOptions(cfg, page)...)
	doc, err := ihtml.NewDocument(ts.URL+"/", strings.NewReader(body), opts...)
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	t.Cleanup(func() { _ = doc.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := doc.Settle(ctx); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	return doc
}

func fragment(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	}
}

func TestDocumentOptions_Empty(t *testing.T) {
	cfg := &Config{}
	if opts := DocumentOptions(cfg, PageConfig{URL: "https://example.com/"}); len(opts) != 0 {
		t.Errorf("len(DocumentOptions()) = %d, want 0", len(opts))
	}
}

func TestDocumentOptions_Headers(t *testing.T) {
	var mu sync.Mutex
	var got http.Header

	cfg := &Config{Headers: map[string]string{"X-Global": "g", "X-Both": "global"}}
	page := PageConfig{Headers: map[string]string{"X-Page": "p", "X-Both": "page"}}

	openWith(t, cfg, page, `<i-html src="/frag"></i-html>`, map[string]http.HandlerFunc{
		"/frag": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			got = r.Header.Clone()
			mu.Unlock()
			fragment("<p>ok</p>")(w, r)
		},
	})

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("fragment was never requested")
	}
	if got.Get("X-Global") != "g" {
		t.Errorf("X-Global = %q, want g", got.Get("X-Global"))
	}
	if got.Get("X-Page") != "p" {
		t.Errorf("X-Page = %q, want p", got.Get("X-Page"))
	}
	if got.Get("X-Both") != "page" {
		t.Errorf("X-Both = %q, want page", got.Get("X-Both"))
	}
}

func TestDocumentOptions_Overrides(t *testing.T) {
	cfg := &Config{RevealAll: true}
	page := PageConfig{Overrides: map[string]map[string]string{
		"#cart":  {"src": "/debug", "loading": "lazy"},
		".promo": {"insert": "append"},
	}}

	doc := openWith(t, cfg, page,
		`<i-html id="cart" src="/cart" loading="none"></i-html><i-html id="promo" class="promo" src="/promo"><p>old</p></i-html>`,
		map[string]http.HandlerFunc{
			"/cart":  fragment("<p>cart</p>"),
			"/debug": fragment("<p>debug</p>"),
			"/promo": fragment("<p>new</p>"),
		})

	if got := doc.ElementByID("cart").InnerHTML(); got != "<p>debug</p>" {
		t.Errorf("cart InnerHTML() = %q, want <p>debug</p>", got)
	}
	if got := doc.ElementByID("promo").InnerHTML(); got != "<p>old</p><p>new</p>" {
		t.Errorf("promo InnerHTML() = %q, want appended content", got)
	}
}

func TestDocumentOptions_MaxBodySize(t *testing.T) {
	cfg := &Config{MaxBodySize: 8}
	doc := openWith(t, cfg, PageConfig{}, `<i-html id="big" src="/big"></i-html>`, map[string]http.HandlerFunc{
		"/big": fragment("<p>" + strings.Repeat("x", 64) + "</p>"),
	})

	if got := doc.ElementByID("big").State(); got != ihtml.StateError {
		t.Errorf("State() = %v, want %v", got, ihtml.StateError)
	}
}

func TestPreviewOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
title: Shop
port: 9090
settle_timeout: 2s
pages:
  - name: home
    url: https://example.com/
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	page, err := cfg.Page("home")
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}

	p, err := preview.New(PreviewOptions(cfg, page, testLogger())...)
	if err != nil {
		t.Fatalf("preview.New() error = %v", err)
	}
	if p.Port() != 9090 {
		t.Errorf("Port() = %d, want 9090", p.Port())
	}
	if p.PageURL() != "https://example.com/" {
		t.Errorf("PageURL() = %q", p.PageURL())
	}
}

func TestMapToKeyValuePairs_Sorted(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"z": "3", "a": "1", "m": "2"})
	want := []string{"a", "1", "m", "2", "z", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}
