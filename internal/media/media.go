package media

import (
	"errors"
	"fmt"
	"mime"
	"regexp"
	"strings"
)

// DefaultAccept is used when the accept attribute is missing or invalid.
const DefaultAccept = "text/html"

// EventStream is the accept value that switches an element to streaming.
const EventStream = "text/event-stream"

var (
	// ErrMismatch is returned when a response's family differs from the accepted one.
	ErrMismatch = errors.New("media type does not match accept")

	// ErrUnknownType is returned when a response has no recognizable media type.
	ErrUnknownType = errors.New("unrecognized media type")
)

// acceptPattern lists the accept values an element understands: the four
// document types, event streams, wildcards and structured-syntax suffixes.
var acceptPattern = regexp.MustCompile(
	`^(?:text/(?:plain|html|event-stream)|application/xml|image/svg\+xml` +
		`|(?:\*|[a-z0-9][a-z0-9.+-]*)/\*` +
		`|[a-z0-9][a-z0-9.-]*/[a-z0-9][a-z0-9.+-]*\+(?:xml|html|plain))$`)

// Family groups media types by how their payload is parsed.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyPlain
	FamilyHTML
	FamilyXML
	FamilySVG
	FamilyEventStream
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyPlain:
		return "plain"
	case FamilyHTML:
		return "html"
	case FamilyXML:
		return "xml"
	case FamilySVG:
		return "svg"
	case FamilyEventStream:
		return "event-stream"
	default:
		return "unknown"
	}
}

// NormalizeAccept validates a raw accept attribute value. Valid values are
// returned trimmed and lower-cased; anything else yields [DefaultAccept].
func NormalizeAccept(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if acceptPattern.MatchString(v) {
		return v
	}
	return DefaultAccept
}

// IsWildcard reports whether accept is a wildcard pattern such as */* or text/*.
func IsWildcard(accept string) bool {
	return strings.HasSuffix(accept, "/*")
}

// IsEventStream reports whether accept selects streaming mode.
func IsEventStream(accept string) bool {
	return accept == EventStream
}

// FamilyOf classifies a media type essence (no parameters).
func FamilyOf(mediaType string) Family {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch mt {
	case EventStream:
		return FamilyEventStream
	case "image/svg+xml":
		return FamilySVG
	case "text/plain":
		return FamilyPlain
	case "text/html":
		return FamilyHTML
	case "application/xml", "text/xml":
		return FamilyXML
	}

	if idx := strings.LastIndexByte(mt, '+'); idx >= 0 {
		switch mt[idx+1:] {
		case "xml":
			return FamilyXML
		case "html":
			return FamilyHTML
		case "plain":
			return FamilyPlain
		}
	}
	return FamilyUnknown
}

// Negotiate matches a response Content-Type header against accept and returns
// the family that decides how the body is parsed.
//
// Unless accept is a wildcard, the response family must equal the accept
// family. A missing or unrecognized content type fails with [ErrUnknownType].
func Negotiate(accept, contentType string) (Family, error) {
	if strings.TrimSpace(contentType) == "" {
		return FamilyUnknown, fmt.Errorf("%w: missing content type", ErrUnknownType)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FamilyUnknown, fmt.Errorf("%w: %q", ErrUnknownType, contentType)
	}

	family := FamilyOf(mt)
	if family == FamilyUnknown || family == FamilyEventStream {
		return FamilyUnknown, fmt.Errorf("%w: %q", ErrUnknownType, mt)
	}

	if IsWildcard(accept) {
		return family, nil
	}
	if want := FamilyOf(accept); want != family {
		return FamilyUnknown, fmt.Errorf("%w: got %s (%s), accept %s (%s)", ErrMismatch, mt, family, accept, want)
	}
	return family, nil
}
