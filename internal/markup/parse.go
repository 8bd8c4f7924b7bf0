package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/jpalmerr/ihtml/internal/media"
)

// ErrMalformed is returned when an XML payload is not well-formed.
var ErrMalformed = errors.New("malformed markup")

// namespace URIs mapped to the short names x/net/html uses for foreign content
var namespaces = map[string]string{
	"http://www.w3.org/2000/svg":           "svg",
	"http://www.w3.org/1998/Math/MathML":   "math",
	"http://www.w3.org/1999/xhtml":         "",
	"http://www.w3.org/1999/xlink":         "xlink",
	"http://www.w3.org/XML/1998/namespace": "xml",
	"http://www.w3.org/2000/xmlns/":        "xmlns",
	"xmlns":                                "xmlns",
}

// Parse turns a response body into a document node according to family.
//
// Plain text is escaped and wrapped in a single <pre> element before HTML
// parsing, so it can never produce markup. HTML is parsed with the HTML5
// algorithm. XML and SVG are parsed as XML into the same node type, keeping
// element names and the SVG namespace intact.
func Parse(family media.Family, body []byte) (*html.Node, error) {
	switch family {
	case media.FamilyPlain:
		return WrapText(string(body))
	case media.FamilyHTML:
		return html.Parse(bytes.NewReader(body))
	case media.FamilyXML, media.FamilySVG:
		return ParseXML(body)
	default:
		return nil, fmt.Errorf("cannot parse %s payload", family)
	}
}

// WrapText parses text as the content of an inert <pre> element.
func WrapText(text string) (*html.Node, error) {
	return html.Parse(strings.NewReader("<pre>" + html.EscapeString(text) + "</pre>"))
}

// ParseXML builds a document node from a well-formed XML payload.
func ParseXML(body []byte) (*html.Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	doc := &html.Node{Type: html.DocumentNode}
	cur := doc
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if cur == doc {
				if sawRoot {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
				}
				sawRoot = true
			}
			n := &html.Node{
				Type:      html.ElementNode,
				Data:      t.Name.Local,
				Namespace: namespaceOf(t.Name.Space, cur),
				Attr:      convertAttrs(t.Attr),
			}
			if n.Namespace == "" {
				n.DataAtom = atom.Lookup([]byte(n.Data))
			}
			cur.AppendChild(n)
			cur = n
		case xml.EndElement:
			if cur.Parent == nil {
				return nil, fmt.Errorf("%w: unexpected end element %q", ErrMalformed, t.Name.Local)
			}
			cur = cur.Parent
		case xml.CharData:
			if cur == doc {
				continue // whitespace around the root element
			}
			cur.AppendChild(&html.Node{Type: html.TextNode, Data: string(t)})
		case xml.Comment:
			cur.AppendChild(&html.Node{Type: html.CommentNode, Data: string(t)})
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return doc, nil
}

// namespaceOf maps a namespace URI to a short name. Elements without an
// explicit namespace inherit their parent's.
func namespaceOf(uri string, parent *html.Node) string {
	if uri == "" {
		if parent != nil && parent.Type == html.ElementNode {
			return parent.Namespace
		}
		return ""
	}
	if ns, ok := namespaces[uri]; ok {
		return ns
	}
	return ""
}

func convertAttrs(attrs []xml.Attr) []html.Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]html.Attribute, 0, len(attrs))
	for _, a := range attrs {
		attr := html.Attribute{Key: a.Name.Local, Val: a.Value}
		if a.Name.Space != "" {
			// unknown namespaces are dropped; the renderer cannot express them
			attr.Namespace = namespaces[a.Name.Space]
		}
		out = append(out, attr)
	}
	return out
}
