// Package shop is a small demo site whose pages are assembled from i-html
// includes: plain fragments, a lazy fragment, an SVG, a refreshing fragment
// and a price ticker streamed as Server-Sent Events.
package shop

import (
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const page = `<!DOCTYPE html>
<html>
<head><title>Demo shop</title></head>
<body>
  <i-html id="nav" src="/fragments/nav"></i-html>
  <i-html id="logo" src="/fragments/logo.svg" accept="image/svg+xml"></i-html>
  <main>
    <i-html id="cart" src="/fragments/cart" target="#items"><p>Loading cart...</p></i-html>
    <i-html id="stock" src="/fragments/stock" allow="refresh"></i-html>
    <i-html id="ticker" src="/events/prices" accept="text/event-stream" insert="append"></i-html>
    <i-html id="reviews" src="/fragments/reviews" loading="lazy"><p>Scroll for reviews</p></i-html>
  </main>
</body>
</html>`

// Handler returns the demo site.
func Handler(logger *slog.Logger) http.Handler {
	s := &site{logger: logger, prices: map[string]int{"tea": 350, "coffee": 420, "cocoa": 300}}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePage)
	mux.HandleFunc("/fragments/nav", fragment(`<nav><a href="/fragments/cart" target="cart">Cart</a> <a href="/fragments/reviews" target="reviews">Reviews</a></nav>`))
	mux.HandleFunc("/fragments/logo.svg", s.handleLogo)
	mux.HandleFunc("/fragments/cart", fragment(`<section><h2>Cart</h2><ul id="items"><li>Tea</li><li>Cocoa</li></ul></section>`))
	mux.HandleFunc("/fragments/reviews", fragment(`<ul><li>Five stars</li><li>Would brew again</li></ul>`))
	mux.HandleFunc("/fragments/stock", s.handleStock)
	mux.HandleFunc("/events/prices", s.handlePrices)
	return mux
}

type site struct {
	logger *slog.Logger

	mu     sync.Mutex
	prices map[string]int
}

func fragment(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}
}

func (s *site) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, page)
}

func (s *site) handleLogo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = fmt.Fprint(w, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><circle cx="5" cy="5" r="4"/></svg>`)
}

// handleStock reports a random stock level and asks to be reloaded.
func (s *site) handleStock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Refresh", "5")
	_, _ = fmt.Fprintf(w, `<p class="stock">%d in stock</p>`, rand.Intn(50))
}

// handlePrices streams a price change every one to three seconds until the
// client goes away.
func (s *site) handlePrices(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher.Flush()

	products := []string{"tea", "coffee", "cocoa"}
	for id := 1; ; id++ {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(time.Duration(1+rand.Intn(3)) * time.Second):
		}

		product := products[rand.Intn(len(products))]
		s.mu.Lock()
		old := s.prices[product]
		s.prices[product] = old + rand.Intn(41) - 20
		price := s.prices[product]
		s.mu.Unlock()
		s.logger.Info("price change", "product", product, "from", old, "to", price)

		line := fmt.Sprintf(`<p class="price">%s: %d.%02d</p>`, html.EscapeString(product), price/100, price%100)
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", id, line); err != nil {
			return
		}
		flusher.Flush()
	}
}
