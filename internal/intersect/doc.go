// Package intersect is a headless stand-in for viewport intersection
// observation.
//
// There is no layout engine, so hosts report geometry explicitly with
// [Observer.Report] (or [Observer.Reveal]). A target qualifies when its
// visible ratio reaches the threshold or when it sits within the margin
// below the viewport. Each observation fires once.
package intersect
