// Package loop provides the serial task loop that drives a document.
//
// This package is internal to ihtml. It stands in for a browser event loop:
// all element state transitions, DOM mutation and event dispatch for one
// document run as tasks on a single [Loop], so they are totally ordered
// without further locking. Network I/O happens on other goroutines and posts
// its continuation back with [Loop.Post].
//
// The main components are:
//
//   - [Loop]: serial executor with idempotent Start/Stop
//   - [Timer]: delayed task that is dropped on the loop once stopped
package loop

import "errors"

// ErrStopped is returned by [Loop.Do] when the loop no longer accepts tasks.
var ErrStopped = errors.New("loop stopped")
