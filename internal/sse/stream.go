package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MediaType is the content type of a server-sent event stream.
const MediaType = "text/event-stream"

// ErrNotEventStream is returned when a response cannot start a stream because
// of its status code or content type.
var ErrNotEventStream = errors.New("response is not an event stream")

// Event is one dispatched server-sent event.
type Event struct {
	// Type is the event name; "message" when the server sent none.
	Type string

	// Data is the payload, with multiple data lines joined by "\n".
	Data string

	// ID is the last event ID seen on the stream, including this event.
	ID string

	// Retry is the reconnection time requested by the server, if any.
	Retry time.Duration
}

// Stream reads events from an open event-stream response.
//
// Stream is not safe for concurrent use; a single goroutine should call
// [Stream.Next] in a loop until it returns an error. Closing the stream (or
// cancelling the request context) unblocks a pending Next.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	lastID string
	retry  time.Duration
	first  bool
}

// Accept validates the handshake of resp and wraps its body in a [Stream].
//
// The response must have status 200 and a text/event-stream content type;
// otherwise the body is closed and an error wrapping [ErrNotEventStream] is
// returned.
func Accept(resp *http.Response) (*Stream, error) {
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrNotEventStream, resp.StatusCode)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != MediaType {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: content type %q", ErrNotEventStream, resp.Header.Get("Content-Type"))
	}
	return NewStream(resp.Body), nil
}

// NewStream wraps an event-stream body without any handshake checks.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:   body,
		reader: bufio.NewReader(body),
		first:  true,
	}
}

// Next blocks until the next event is dispatched.
//
// Returns io.EOF when the server closes the stream cleanly. A partially
// received event at EOF is discarded.
func (s *Stream) Next() (Event, error) {
	var (
		data      strings.Builder
		eventType string
		hasData   bool
	)

	for {
		line, err := s.readLine()
		if err != nil {
			return Event{}, err
		}

		if line == "" {
			if !hasData {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = "message"
			}
			payload := strings.TrimSuffix(data.String(), "\n")
			return Event{Type: eventType, Data: payload, ID: s.lastID, Retry: s.retry}, nil
		}

		if strings.HasPrefix(line, ":") {
			continue // comment
		}

		field, value := line, ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			field = line[:idx]
			value = strings.TrimPrefix(line[idx+1:], " ")
		}

		switch field {
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "event":
			eventType = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				s.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns the next line without its terminator.
func (s *Stream) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if s.first {
		s.first = false
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return line, nil
}

// Close closes the underlying response body. Safe to call multiple times.
func (s *Stream) Close() error {
	if s == nil || s.body == nil {
		return nil
	}
	return s.body.Close()
}
