package ihtml

import (
	"net/http"
	"testing"

	"golang.org/x/net/html"
)

const interceptPage = `
<i-html id="main" loading="none"></i-html>
<i-html name="side" loading="none"></i-html>
<div id="plain"></div>
<a id="by-id" href="/a" target="main"><span id="inside">go</span></a>
<a id="by-name" href="/b" target="side">go</a>
<a id="to-div" href="/a" target="plain">go</a>
<a id="blank" href="/a" target="_blank">go</a>
<a id="no-target" href="/a">go</a>
<a id="no-href" target="main">go</a>
<form id="form" action="/b" target="main"><button id="plain-submit">ok</button><button id="override" formaction="/a" formtarget="side">ok</button></form>
<form id="no-action" target="main"></form>
`

func interceptFixture(t *testing.T) (*Document, *fixture) {
	t.Helper()
	f := newFixture(t, map[string]http.HandlerFunc{
		"/a":    htmlHandler("<p>a</p>"),
		"/b":    htmlHandler("<p>b</p>"),
		"/page": htmlHandler("<p>page</p>"),
	})
	doc, _ := newDoc(t, f, interceptPage)
	settle(t, doc)
	return doc, f
}

func node(t *testing.T, doc *Document, selector string) *html.Node {
	t.Helper()
	nodes, err := doc.Query(selector)
	if err != nil || len(nodes) == 0 {
		t.Fatalf("Query(%q) = %v, %v", selector, nodes, err)
	}
	return nodes[0]
}

func TestDocument_Click(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     bool
		element  string
		content  string
	}{
		{name: "target by id", selector: "#by-id", want: true, element: "#main", content: "<p>a</p>"},
		{name: "click inside anchor", selector: "#inside", want: true, element: "#main", content: "<p>a</p>"},
		{name: "target by name", selector: "#by-name", want: true, element: "[name=side]", content: "<p>b</p>"},
		{name: "id of another element", selector: "#to-div"},
		{name: "unknown target", selector: "#blank"},
		{name: "no target", selector: "#no-target"},
		{name: "no href", selector: "#no-href"},
		{name: "not a link", selector: "#plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, f := interceptFixture(t)

			if got := doc.Click(node(t, doc, tt.selector)); got != tt.want {
				t.Fatalf("Click() = %v, want %v", got, tt.want)
			}
			settle(t, doc)

			if !tt.want {
				if n := f.count("/a") + f.count("/b"); n != 0 {
					t.Errorf("requests = %d, want 0", n)
				}
				return
			}
			e := doc.Element(node(t, doc, tt.element))
			if got := e.InnerHTML(); got != tt.content {
				t.Errorf("InnerHTML() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestDocument_Submit(t *testing.T) {
	tests := []struct {
		name      string
		form      string
		submitter string
		element   string
		content   string
	}{
		{name: "form action and target", form: "#form", element: "#main", content: "<p>b</p>"},
		{name: "plain button", form: "#form", submitter: "#plain-submit", element: "#main", content: "<p>b</p>"},
		{name: "button overrides", form: "#form", submitter: "#override", element: "[name=side]", content: "<p>a</p>"},
		{name: "page url without action", form: "#no-action", element: "#main", content: "<p>page</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, _ := interceptFixture(t)

			var submitter *html.Node
			if tt.submitter != "" {
				submitter = node(t, doc, tt.submitter)
			}
			if !doc.Submit(node(t, doc, tt.form), submitter) {
				t.Fatal("Submit() = false, want true")
			}
			settle(t, doc)

			e := doc.Element(node(t, doc, tt.element))
			if got := e.InnerHTML(); got != tt.content {
				t.Errorf("InnerHTML() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestDocument_SubmitNotAForm(t *testing.T) {
	doc, _ := interceptFixture(t)
	if doc.Submit(node(t, doc, "#plain"), nil) {
		t.Error("Submit() = true for a div")
	}
}
