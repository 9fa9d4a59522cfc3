// Package emphasis computes the bionic-reading prefix of a single word.
package emphasis

import (
	"html"
	"math"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// DefaultRatio is the fraction of a word's length that is marked.
const DefaultRatio = 0.43

// Segment is a run of text that is either marked strong or left plain.
type Segment struct {
	Text   string
	Strong bool
}

// PrefixLength returns how many characters of an n-character word are marked.
// Words of up to three characters get a one-character prefix; longer words get
// round(n*ratio), never zero and never the whole word.
func PrefixLength(n int, ratio float64) int {
	if n <= 3 {
		return 1
	}
	k := int(math.Round(float64(n) * ratio))
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		k = n - 1
	}
	return k
}

// Emphasize splits a core word into a strong prefix and a plain remainder.
// Hyphen-joined compounds are emphasized part by part; numeric parts are left
// plain.
func Emphasize(word string, ratio float64) []Segment {
	if word == "" {
		return nil
	}
	if !strings.Contains(word, "-") {
		return emphasizeWord(word, ratio)
	}

	var segs []Segment
	for i, part := range strings.Split(word, "-") {
		if i > 0 {
			segs = append(segs, Segment{Text: "-"})
		}
		switch {
		case part == "":
		case IsNumeric(part):
			segs = append(segs, Segment{Text: part})
		default:
			segs = append(segs, emphasizeWord(part, ratio)...)
		}
	}
	return Merge(segs)
}

// EmphasizeHTML is Emphasize rendered as HTML.
func EmphasizeHTML(word string, ratio float64) string {
	return HTML(Emphasize(word, ratio))
}

func emphasizeWord(word string, ratio float64) []Segment {
	n := uniseg.GraphemeClusterCount(word)
	k := PrefixLength(n, ratio)
	if k > n {
		k = n
	}

	end := 0
	gr := uniseg.NewGraphemes(word)
	for i := 0; i < k && gr.Next(); i++ {
		_, end = gr.Positions()
	}

	segs := []Segment{{Text: word[:end], Strong: true}}
	if end < len(word) {
		segs = append(segs, Segment{Text: word[end:]})
	}
	return segs
}

// IsNumeric reports whether s is non-empty and made of digits only.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Merge joins adjacent segments with the same weight and drops empty ones.
func Merge(segs []Segment) []Segment {
	out := segs[:0:0]
	for _, s := range segs {
		if s.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Strong == s.Strong {
			out[n-1].Text += s.Text
			continue
		}
		out = append(out, s)
	}
	return out
}

// HTML renders segments with strong runs wrapped in <b>. Text is escaped.
func HTML(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Strong {
			b.WriteString("<b>")
			b.WriteString(html.EscapeString(s.Text))
			b.WriteString("</b>")
			continue
		}
		b.WriteString(html.EscapeString(s.Text))
	}
	return b.String()
}

// Text concatenates the segments' text, dropping all marking.
func Text(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}
