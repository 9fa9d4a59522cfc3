// Package eligibility decides whether text beneath a node may be transformed.
package eligibility

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
)

// ContainerAttr marks elements produced by the transformer.
const ContainerAttr = "data-bionic"

// DefaultDepth is how many ancestors are inspected.
const DefaultDepth = 5

// Options configures a Filter.
type Options struct {
	Depth              int
	ProtectedTags      []string
	ProtectedSelectors []string
	// CursorSelector, when DetectCursor is set, rejects candidates that
	// contain a live typing cursor.
	CursorSelector string
	DetectCursor   bool
}

// Filter rejects nodes inside protected zones.
type Filter struct {
	depth     int
	tags      map[string]struct{}
	protected cascadia.SelectorGroup
	cursor    cascadia.SelectorGroup
}

// New compiles the protected selectors.
func New(opts Options) (*Filter, error) {
	f := &Filter{
		depth: opts.Depth,
		tags:  make(map[string]struct{}, len(opts.ProtectedTags)),
	}
	if f.depth <= 0 {
		f.depth = DefaultDepth
	}
	for _, t := range opts.ProtectedTags {
		f.tags[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	if sel := strings.Join(nonEmpty(opts.ProtectedSelectors), ", "); sel != "" {
		group, err := cascadia.ParseGroup(sel)
		if err != nil {
			return nil, fmt.Errorf("invalid protected selector %q: %w", sel, err)
		}
		f.protected = group
	}
	if opts.DetectCursor && strings.TrimSpace(opts.CursorSelector) != "" {
		group, err := cascadia.ParseGroup(opts.CursorSelector)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor selector %q: %w", opts.CursorSelector, err)
		}
		f.cursor = group
	}
	return f, nil
}

// Eligible walks up from n, at most Depth levels, and reports false as soon
// as a level is protected. Walking past the bound or reaching the document
// root means eligible.
func (f *Filter) Eligible(n *html.Node) bool {
	if n == nil {
		return false
	}
	if f.cursor != nil && n.Type == html.ElementNode && cascadia.Query(n, f.cursor) != nil {
		return false
	}

	level := 0
	for p := n; p != nil && level < f.depth; p = p.Parent {
		if p.Type == html.DocumentNode {
			return true
		}
		if p.Type == html.ElementNode && f.protectedElement(p) {
			return false
		}
		level++
	}
	return true
}

func (f *Filter) protectedElement(el *html.Node) bool {
	if _, ok := f.tags[el.Data]; ok {
		return true
	}
	if IsContainer(el) {
		return true
	}
	if v, ok := dom.Attr(el, "contenteditable"); ok && !strings.EqualFold(v, "false") {
		return true
	}
	return f.protected != nil && f.protected.Match(el)
}

// IsContainer reports whether n is a markup container.
func IsContainer(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	_, ok := dom.Attr(n, ContainerAttr)
	return ok
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
