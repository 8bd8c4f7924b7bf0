package store

import "time"

// Snapshot is the latest known state of one i-html element on the
// previewed page, shaped for the JSON API and the SSE feed.
type Snapshot struct {
	// Key identifies the element: its id attribute, or its position among
	// the page's elements when it has none.
	Key string `json:"key"`

	// Src is the resolved source URL, empty when the element has none.
	Src string `json:"src"`

	// Accept is the effective accept value.
	Accept string `json:"accept"`

	// Loading is the loading mode (eager, lazy or none).
	Loading string `json:"loading"`

	// State is the element's ready state (waiting, loading, streaming,
	// loaded or error).
	State string `json:"state"`

	// LastEvent is the type of the most recent event dispatched on the element.
	LastEvent string `json:"last_event"`

	// Loads counts completed loads, successful or not.
	Loads int `json:"loads"`

	// Allow lists the recognized allow tokens.
	Allow []string `json:"allow"`

	// UpdatedAt is when the snapshot was taken.
	UpdatedAt time.Time `json:"updated_at"`

	// Error contains the message of the last failure. nil once a later
	// load succeeds.
	Error *string `json:"error"`
}

// Store holds element snapshots and fans updates out to subscribers.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a snapshot and notifies all subscribers. Snapshots are
	// keyed by Key, so later updates replace earlier ones.
	Update(snap Snapshot)

	// Get returns the snapshot stored under key.
	Get(key string) (Snapshot, bool)

	// GetAll returns all snapshots ordered by Key.
	// The returned slice is a copy; modifications do not affect the store.
	GetAll() []Snapshot

	// Subscribe returns a channel that receives updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
