// Package revert restores plain text from markup containers.
package revert

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/eligibility"
)

// StyleID is the id of the stylesheet injected while the engine is enabled.
const StyleID = "bionic-style"

// Revert replaces every container in the document with a single text node
// holding the container's rendered text, then removes the injected
// stylesheet. It returns the number of containers replaced.
func Revert(doc *dom.Document) int {
	restored := 0
	doc.Find("[" + eligibility.ContainerAttr + "]").Each(func(_ int, s *goquery.Selection) {
		container := s.Get(0)
		if container.Parent == nil || !doc.Attached(container) {
			return
		}
		// a nested container goes away with its outermost one
		if insideContainer(container) {
			return
		}
		if err := doc.ReplaceChild(container.Parent, dom.NewText(s.Text()), container); err == nil {
			restored++
		}
	})

	RemoveStyle(doc)
	return restored
}

// RemoveStyle removes the injected stylesheet and reports whether it was
// present.
func RemoveStyle(doc *dom.Document) bool {
	style := doc.Find("style#" + StyleID)
	for _, n := range style.Nodes {
		if n.Parent != nil {
			_ = doc.RemoveChild(n.Parent, n)
		}
	}
	return style.Length() > 0
}

func insideContainer(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if eligibility.IsContainer(p) {
			return true
		}
	}
	return false
}
