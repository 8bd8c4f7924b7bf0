package intersect

import (
	"sync"

	"golang.org/x/net/html"
)

const (
	// ScrollStep is the distance one keyboard arrow press scrolls, in pixels.
	ScrollStep = 40

	// DefaultMargin extends the viewport bottom by two scroll steps.
	DefaultMargin = 2 * ScrollStep

	// DefaultThreshold is the visible ratio that counts as intersecting.
	DefaultThreshold = 0.01
)

// Options configures an [Observer]. Zero values select the defaults.
type Options struct {
	// Margin is how far below the viewport, in pixels, a target may sit
	// and still count as intersecting.
	Margin float64

	// Threshold is the minimum visible ratio that counts as intersecting.
	Threshold float64

	// RevealAll treats every observed target as visible immediately.
	RevealAll bool
}

type geometry struct {
	ratio  float64
	offset float64
}

// Observer tracks targets waiting for viewport proximity and fires each
// target's callback once, on its first qualifying report.
//
// Observer is safe for concurrent use. Callbacks run on the reporting
// goroutine without any lock held.
type Observer struct {
	mu        sync.Mutex
	margin    float64
	threshold float64
	revealAll bool
	pending   map[*html.Node]func()
	last      map[*html.Node]geometry
}

// New creates an observer.
func New(opts Options) *Observer {
	if opts.Margin <= 0 {
		opts.Margin = DefaultMargin
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Observer{
		margin:    opts.Margin,
		threshold: opts.Threshold,
		revealAll: opts.RevealAll,
		pending:   make(map[*html.Node]func()),
		last:      make(map[*html.Node]geometry),
	}
}

// Observe starts watching target. fire is called at most once, after which
// the target is no longer observed. If the last reported geometry of target
// already qualifies, fire is called before Observe returns. Observing a
// target again replaces its callback.
func (o *Observer) Observe(target *html.Node, fire func()) {
	o.mu.Lock()
	g, seen := o.last[target]
	if o.revealAll || (seen && o.qualifies(g)) {
		delete(o.pending, target)
		o.mu.Unlock()
		fire()
		return
	}
	o.pending[target] = fire
	o.mu.Unlock()
}

// Unobserve stops watching target. It reports whether target was observed.
func (o *Observer) Unobserve(target *html.Node) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[target]
	delete(o.pending, target)
	return ok
}

// Observing reports whether target is waiting for an intersection.
func (o *Observer) Observing(target *html.Node) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[target]
	return ok
}

// Report records the geometry of target: ratio is the visible fraction
// (0..1) and offset is the distance in pixels from the viewport bottom to
// the target's top edge (negative or zero once scrolled into view). It
// reports whether a callback fired.
func (o *Observer) Report(target *html.Node, ratio, offset float64) bool {
	o.mu.Lock()
	g := geometry{ratio: ratio, offset: offset}
	o.last[target] = g
	fire, ok := o.pending[target]
	if !ok || !o.qualifies(g) {
		o.mu.Unlock()
		return false
	}
	delete(o.pending, target)
	o.mu.Unlock()

	fire()
	return true
}

// Reveal reports target as fully visible.
func (o *Observer) Reveal(target *html.Node) bool {
	return o.Report(target, 1, 0)
}

// Forget drops everything known about target.
func (o *Observer) Forget(target *html.Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, target)
	delete(o.last, target)
}

func (o *Observer) qualifies(g geometry) bool {
	if g.ratio >= o.threshold {
		return true
	}
	return g.offset <= o.margin
}
