// Package dom wraps an x/net/html tree with the pieces of a browser document
// the engine relies on: subtree-scoped mutation observers, visibility
// notifications and attachment checks.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	ErrNotChild = errors.New("node is not a child of the given parent")
	ErrNotText  = errors.New("node is not a text node")
)

// Document is an observable HTML tree. Its methods must be called from the
// goroutine that drives its Loop.
type Document struct {
	root *html.Node
	loop runloop.Loop

	observers       []*Observer
	deferVisibility bool
	visibility      map[*html.Node][]*visibilityWatch
}

// Option configures a Document.
type Option func(*Document)

// WithDeferredVisibility makes ObserveVisibility wait for Reveal instead of
// reporting every element visible right away.
func WithDeferredVisibility() Option {
	return func(d *Document) { d.deferVisibility = true }
}

// New wraps an existing tree.
func New(root *html.Node, loop runloop.Loop, opts ...Option) *Document {
	d := &Document{
		root:       root,
		loop:       loop,
		visibility: make(map[*html.Node][]*visibilityWatch),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Parse parses a full HTML document.
func Parse(r io.Reader, loop runloop.Loop, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return New(root, loop, opts...), nil
}

// ParseString is Parse over a string.
func ParseString(s string, loop runloop.Loop, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), loop, opts...)
}

// ParseArticle uses go-readability to extract the main article content and
// parses that clean content into a Document.
func ParseArticle(rawHTML, rawURL string, loop runloop.Loop, opts ...Option) (*Document, string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid article url %q: %w", rawURL, err)
	}

	readabilityParser := readability.NewParser()
	article, err := readabilityParser.Parse(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract article: %w", err)
	}

	page := "<html><head><title>" + html.EscapeString(article.Title) + "</title></head><body>" +
		article.Content + "</body></html>"
	doc, err := ParseString(page, loop, opts...)
	if err != nil {
		return nil, "", err
	}
	return doc, article.Title, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Loop returns the loop mutation records are delivered on.
func (d *Document) Loop() runloop.Loop { return d.loop }

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node { return findElement(d.root, atom.Body) }

// Head returns the <head> element, or nil.
func (d *Document) Head() *html.Node { return findElement(d.root, atom.Head) }

// Selection returns a goquery selection rooted at the document node.
func (d *Document) Selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(d.root).Selection
}

// Find runs a CSS selector against the whole document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.Selection().Find(selector)
}

// Attached reports whether n is still part of the document tree.
func (d *Document) Attached(n *html.Node) bool {
	return Contains(d.root, n)
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document as HTML.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Text returns the concatenated text content of the document.
func (d *Document) Text() string {
	return TextContent(d.root)
}

// AppendChild appends child to parent, moving it first if it already has a
// parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.detach(child)
	parent.AppendChild(child)
	d.notify(Mutation{Kind: ChildList, Target: parent, Added: []*html.Node{child}})
}

// InsertBefore inserts child before ref. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if ref == nil {
		d.AppendChild(parent, child)
		return nil
	}
	if ref.Parent != parent {
		return ErrNotChild
	}
	d.detach(child)
	parent.InsertBefore(child, ref)
	d.notify(Mutation{Kind: ChildList, Target: parent, Added: []*html.Node{child}})
	return nil
}

// RemoveChild removes child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if child.Parent != parent || parent == nil {
		return ErrNotChild
	}
	parent.RemoveChild(child)
	d.notify(Mutation{Kind: ChildList, Target: parent, Removed: []*html.Node{child}})
	return nil
}

// ReplaceChild puts replacement where old was.
func (d *Document) ReplaceChild(parent, replacement, old *html.Node) error {
	if old.Parent != parent || parent == nil {
		return ErrNotChild
	}
	d.detach(replacement)
	parent.InsertBefore(replacement, old)
	parent.RemoveChild(old)
	d.notify(Mutation{
		Kind:    ChildList,
		Target:  parent,
		Added:   []*html.Node{replacement},
		Removed: []*html.Node{old},
	})
	return nil
}

// SetText replaces the content of a text node.
func (d *Document) SetText(n *html.Node, text string) error {
	if n.Type != html.TextNode {
		return ErrNotText
	}
	n.Data = text
	d.notify(Mutation{Kind: CharacterData, Target: n})
	return nil
}

// AppendText appends to the content of a text node.
func (d *Document) AppendText(n *html.Node, text string) error {
	if n.Type != html.TextNode {
		return ErrNotText
	}
	return d.SetText(n, n.Data+text)
}

func (d *Document) detach(n *html.Node) {
	if n.Parent == nil {
		return
	}
	parent := n.Parent
	parent.RemoveChild(n)
	d.notify(Mutation{Kind: ChildList, Target: parent, Removed: []*html.Node{n}})
}

// NewText creates a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// NewElement creates a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// TextNodes returns the text nodes at or beneath n in document order.
func TextNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// TextContent concatenates the text beneath n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	for _, t := range TextNodes(n) {
		b.WriteString(t.Data)
	}
	return b.String()
}

// Attr returns the value of an attribute and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
