package ihtml

import (
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/jpalmerr/ihtml/internal/markup"
	"github.com/jpalmerr/ihtml/internal/media"
	"github.com/jpalmerr/ihtml/internal/sanitize"
)

// Attribute names understood by an element.
const (
	AttrSrc         = "src"
	AttrAccept      = "accept"
	AttrTarget      = "target"
	AttrInsert      = "insert"
	AttrLoading     = "loading"
	AttrAllow       = "allow"
	AttrCredentials = "credentials"
)

const (
	defaultTarget    = "body > *"
	defaultSVGTarget = "svg"
)

// InsertMode is how extracted nodes merge into an element's children.
type InsertMode string

const (
	InsertReplace InsertMode = "replace"
	InsertAppend  InsertMode = "append"
	InsertPrepend InsertMode = "prepend"
)

// LoadingMode controls when an element loads.
type LoadingMode string

const (
	LoadingEager LoadingMode = "eager"
	LoadingLazy  LoadingMode = "lazy"
	LoadingNone  LoadingMode = "none"
)

// CredentialsMode controls whether cookies are sent with a load.
type CredentialsMode string

const (
	CredentialsSameOrigin CredentialsMode = "same-origin"
	CredentialsInclude    CredentialsMode = "include"
	CredentialsOmit       CredentialsMode = "omit"
)

// Attribute returns the raw value of an attribute.
func (e *Element) Attribute(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return markup.Attr(e.node, name)
}

// SetAttribute sets an attribute. The node changes immediately; the
// element reacts to the change on the document's task loop.
func (e *Element) SetAttribute(name, value string) {
	name = strings.ToLower(name)
	e.doc.mu.Lock()
	markup.SetAttr(e.node, name, value)
	e.doc.mu.Unlock()
	e.doc.loop.Post(func() { e.attributeChanged(name) })
}

// RemoveAttribute removes an attribute, reacting like [Element.SetAttribute].
func (e *Element) RemoveAttribute(name string) {
	name = strings.ToLower(name)
	e.doc.mu.Lock()
	_, existed := markup.RemoveAttr(e.node, name)
	e.doc.mu.Unlock()
	if existed {
		e.doc.loop.Post(func() { e.attributeChanged(name) })
	}
}

func (e *Element) attr(name string) string {
	v, _ := e.Attribute(name)
	return v
}

// Src returns the src attribute resolved against the document URL, or ""
// when absent.
func (e *Element) Src() string {
	raw, ok := e.Attribute(AttrSrc)
	if !ok {
		return ""
	}
	u, err := e.doc.resolve(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

func (e *Element) SetSrc(v string) { e.SetAttribute(AttrSrc, v) }

// Accept returns the validated accept value. Invalid or missing values
// resolve to text/html.
func (e *Element) Accept() string {
	return media.NormalizeAccept(e.attr(AttrAccept))
}

func (e *Element) SetAccept(v string) { e.SetAttribute(AttrAccept, v) }

// Target returns the selector applied to responses. Missing or invalid
// selectors resolve to "svg" for SVG accepts and "body > *" otherwise.
func (e *Element) Target() string {
	t, _ := e.selector()
	return t
}

func (e *Element) SetTarget(v string) { e.SetAttribute(AttrTarget, v) }

// selector compiles the effective target selector.
func (e *Element) selector() (string, cascadia.Selector) {
	if raw := strings.TrimSpace(e.attr(AttrTarget)); raw != "" {
		if sel, err := cascadia.Compile(raw); err == nil {
			return raw, sel
		}
	}
	def := defaultTarget
	if media.FamilyOf(e.Accept()) == media.FamilySVG {
		def = defaultSVGTarget
	}
	return def, cascadia.MustCompile(def)
}

// Insert returns the insertion mode, defaulting to [InsertReplace].
func (e *Element) Insert() InsertMode {
	switch m := InsertMode(strings.ToLower(strings.TrimSpace(e.attr(AttrInsert)))); m {
	case InsertAppend, InsertPrepend:
		return m
	default:
		return InsertReplace
	}
}

func (e *Element) SetInsert(m InsertMode) { e.SetAttribute(AttrInsert, string(m)) }

// Loading returns the loading mode, defaulting to [LoadingEager].
func (e *Element) Loading() LoadingMode {
	switch m := LoadingMode(strings.ToLower(strings.TrimSpace(e.attr(AttrLoading)))); m {
	case LoadingLazy, LoadingNone:
		return m
	default:
		return LoadingEager
	}
}

func (e *Element) SetLoading(m LoadingMode) { e.SetAttribute(AttrLoading, string(m)) }

// Credentials returns the credentials mode, defaulting to
// [CredentialsSameOrigin].
func (e *Element) Credentials() CredentialsMode {
	switch m := CredentialsMode(strings.ToLower(strings.TrimSpace(e.attr(AttrCredentials)))); m {
	case CredentialsInclude, CredentialsOmit:
		return m
	default:
		return CredentialsSameOrigin
	}
}

func (e *Element) SetCredentials(m CredentialsMode) { e.SetAttribute(AttrCredentials, string(m)) }

// Allow returns the recognized allow tokens in canonical order.
func (e *Element) Allow() []string {
	return e.allowSet().Tokens()
}

// SetAllow replaces the allow list with tokens.
func (e *Element) SetAllow(tokens ...string) {
	e.SetAttribute(AttrAllow, strings.Join(tokens, " "))
}

// allowSet returns the parsed allow attribute, reparsing only when the raw
// value changed.
func (e *Element) allowSet() sanitize.Allow {
	raw := e.attr(AttrAllow)

	e.allowMu.Lock()
	defer e.allowMu.Unlock()
	if !e.allowCached || raw != e.allowRaw {
		e.allowRaw = raw
		e.allowParsed = sanitize.ParseAllow(raw)
		e.allowCached = true
	}
	return e.allowParsed
}

// withCredentials reports whether the cookie jar applies to u.
func (e *Element) withCredentials(u *url.URL) bool {
	switch e.Credentials() {
	case CredentialsInclude:
		return true
	case CredentialsOmit:
		return false
	default:
		return e.doc.sameOrigin(u)
	}
}
