// Package transformer applies bionic emphasis to a run of plain text while
// keeping every character of the input in place.
package transformer

import (
	"html"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/dtnitsch/llm-bionic/pkg/caching"
	"github.com/dtnitsch/llm-bionic/pkg/emphasis"
	"github.com/dtnitsch/llm-bionic/pkg/exclusion"
)

var (
	whitespacePattern = regexp.MustCompile(`[\s\p{Z}]+`)
	// lead punctuation, letter/digit core (optionally hyphen-joined), rest
	corePattern = regexp.MustCompile(`(?s)^([^\p{L}\p{N}]*)([\p{L}\p{M}\p{N}]+(?:-[\p{L}\p{M}\p{N}]+)*)(.*)$`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

// Transformer turns text into emphasized segments. It is safe for concurrent
// use.
type Transformer struct {
	ratio float64
	words *caching.Cache[string, []emphasis.Segment]
}

// New creates a Transformer. ratio outside (0,1) falls back to
// emphasis.DefaultRatio; cacheSize bounds the per-word memo.
func New(ratio float64, cacheSize int) *Transformer {
	if ratio <= 0 || ratio >= 1 {
		ratio = emphasis.DefaultRatio
	}
	return &Transformer{
		ratio: ratio,
		words: caching.NewCache[string, []emphasis.Segment](cacheSize),
	}
}

// Ratio returns the emphasis ratio in use.
func (t *Transformer) Ratio() float64 { return t.ratio }

// Segments splits text into plain and strong runs. The second result is
// false when nothing was marked, in which case the single returned segment is
// the input itself.
func (t *Transformer) Segments(text string) ([]emphasis.Segment, bool) {
	if utf8.RuneCountInString(text) < 3 || !hasLetterOrDigit(text) {
		return []emphasis.Segment{{Text: text}}, false
	}

	var segs []emphasis.Segment
	last := 0
	for _, loc := range whitespacePattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, t.token(text[last:loc[0]])...)
		}
		segs = append(segs, emphasis.Segment{Text: text[loc[0]:loc[1]]})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, t.token(text[last:])...)
	}

	segs = emphasis.Merge(segs)
	for _, s := range segs {
		if s.Strong {
			return segs, true
		}
	}
	return []emphasis.Segment{{Text: text}}, false
}

// Transform returns text as HTML with emphasized word prefixes wrapped in <b>.
func (t *Transformer) Transform(text string) string {
	segs, _ := t.Segments(text)
	return emphasis.HTML(segs)
}

func (t *Transformer) token(tok string) []emphasis.Segment {
	if exclusion.Excluded(tok) {
		return []emphasis.Segment{{Text: tok}}
	}
	m := corePattern.FindStringSubmatch(tok)
	if m == nil || emphasis.IsNumeric(m[2]) {
		return []emphasis.Segment{{Text: tok}}
	}

	lead, core, rest := m[1], m[2], m[3]
	segs := make([]emphasis.Segment, 0, 4)
	segs = append(segs, emphasis.Segment{Text: lead})
	segs = append(segs, t.word(core)...)
	segs = append(segs, emphasis.Segment{Text: rest})
	return segs
}

func (t *Transformer) word(core string) []emphasis.Segment {
	if segs, ok := t.words.Get(core); ok {
		return segs
	}
	segs := emphasis.Emphasize(core, t.ratio)
	t.words.Set(core, segs)
	return segs
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// StripMarkup removes tags from transformer output and decodes entities,
// giving back the original text.
func StripMarkup(markup string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(markup, ""))
}
