package ihtml

// State is the lifecycle state of an [Element]. Exactly one state is
// current at any time.
type State int

const (
	// StateWaiting is the initial state: no load has been attempted.
	StateWaiting State = iota

	// StateLoading means a request is in flight.
	StateLoading

	// StateStreaming means an event stream is open and inserting messages.
	StateStreaming

	// StateLoaded means the last attempt completed successfully.
	StateLoaded

	// StateError means the last attempt failed.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateLoading:
		return "loading"
	case StateStreaming:
		return "streaming"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
