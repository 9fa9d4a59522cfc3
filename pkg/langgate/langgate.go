// Package langgate restricts transformation to content written in a
// configured set of languages.
package langgate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// MinRunes is the amount of text needed before a region's language is
// judged.
const MinRunes = 64

// Gate answers whether a region's text is in an allowed language. A nil Gate
// allows everything.
type Gate struct {
	allowed  map[lingua.Language]struct{}
	detector lingua.LanguageDetector
}

// New builds a Gate from language names ("english") or ISO 639-1 codes
// ("en"). No names means no gate: it returns nil.
func New(names []string) (*Gate, error) {
	if len(names) == 0 {
		return nil, nil
	}

	allowed := make(map[lingua.Language]struct{}, len(names))
	for _, name := range names {
		lang, ok := lookup(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown language %q", name)
		}
		allowed[lang] = struct{}{}
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		WithLowAccuracyMode().
		Build()

	return &Gate{allowed: allowed, detector: detector}, nil
}

// Allow reports whether text may be transformed. decided is false while the
// text is too short to judge; such text is allowed.
func (g *Gate) Allow(text string) (allow, decided bool) {
	if g == nil {
		return true, true
	}
	if utf8.RuneCountInString(text) < MinRunes {
		return true, false
	}
	lang, ok := g.detector.DetectLanguageOf(text)
	if !ok {
		return true, true
	}
	_, allow = g.allowed[lang]
	return allow, true
}

func lookup(name string) (lingua.Language, bool) {
	for _, lang := range lingua.AllLanguages() {
		if strings.EqualFold(lang.String(), name) || strings.EqualFold(lang.IsoCode639_1().String(), name) {
			return lang, true
		}
	}
	return lingua.Unknown, false
}
