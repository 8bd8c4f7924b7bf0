package intersect

import (
	"testing"

	"golang.org/x/net/html"
)

func node() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "i-html"}
}

func TestObserver_FiresOnce(t *testing.T) {
	o := New(Options{})
	n := node()
	fired := 0
	o.Observe(n, func() { fired++ })

	if !o.Observing(n) {
		t.Fatal("Observing() = false after Observe")
	}
	if !o.Report(n, 0.5, -10) {
		t.Error("Report(visible) = false, want true")
	}
	o.Report(n, 1, -100)

	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if o.Observing(n) {
		t.Error("Observing() = true after firing")
	}
}

func TestObserver_Qualification(t *testing.T) {
	tests := []struct {
		name   string
		ratio  float64
		offset float64
		want   bool
	}{
		{"far below", 0, 500, false},
		{"just outside margin", 0, DefaultMargin + 1, false},
		{"inside margin", 0, DefaultMargin, true},
		{"one scroll step away", 0, ScrollStep, true},
		{"below threshold but on screen", 0.001, 0, true},
		{"threshold", DefaultThreshold, 300, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(Options{})
			n := node()
			fired := false
			o.Observe(n, func() { fired = true })
			o.Report(n, tt.ratio, tt.offset)
			if fired != tt.want {
				t.Errorf("fired = %v, want %v", fired, tt.want)
			}
		})
	}
}

func TestObserver_AlreadyVisible(t *testing.T) {
	o := New(Options{})
	n := node()
	if o.Report(n, 1, 0) {
		t.Error("Report() on unobserved target = true")
	}

	fired := false
	o.Observe(n, func() { fired = true })
	if !fired {
		t.Error("Observe() of visible target did not fire")
	}
	if o.Observing(n) {
		t.Error("visible target left pending")
	}
}

func TestObserver_RevealAll(t *testing.T) {
	o := New(Options{RevealAll: true})
	fired := false
	o.Observe(node(), func() { fired = true })
	if !fired {
		t.Error("Observe() with RevealAll did not fire")
	}
}

func TestObserver_Unobserve(t *testing.T) {
	o := New(Options{})
	n := node()
	fired := false
	o.Observe(n, func() { fired = true })

	if !o.Unobserve(n) {
		t.Error("Unobserve() = false, want true")
	}
	if o.Unobserve(n) {
		t.Error("second Unobserve() = true, want false")
	}
	o.Reveal(n)
	if fired {
		t.Error("callback fired after Unobserve")
	}
}

func TestObserver_Forget(t *testing.T) {
	o := New(Options{})
	n := node()
	o.Reveal(n)
	o.Forget(n)

	fired := false
	o.Observe(n, func() { fired = true })
	if fired {
		t.Error("Observe() fired from forgotten geometry")
	}
}

func TestObserver_CustomMargin(t *testing.T) {
	o := New(Options{Margin: 10})
	n := node()
	fired := false
	o.Observe(n, func() { fired = true })
	o.Report(n, 0, 20)
	if fired {
		t.Error("fired outside custom margin")
	}
	o.Report(n, 0, 5)
	if !fired {
		t.Error("did not fire inside custom margin")
	}
}
