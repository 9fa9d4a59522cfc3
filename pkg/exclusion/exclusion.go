// Package exclusion decides which tokens must pass through untouched: URLs,
// numbers, dates, versions, identifiers and filenames.
package exclusion

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names returned by Reason.
const (
	RuleNone       = ""
	RuleShort      = "short"
	RuleWhitespace = "whitespace"
	RuleNumeric    = "numeric"
	RuleURL        = "url"
	RuleEmail      = "email"
	RuleVersion    = "version"
	RuleUUID       = "uuid"
	RuleTime       = "time"
	RuleDate       = "date"
	RuleFilename   = "filename"
	RuleSymbols    = "symbols"
)

var (
	numericPattern = regexp.MustCompile(`^[\d.,]*\d[\d.,]*%?$`)
	emailPattern   = regexp.MustCompile(`^[\w.+-]+@[\w-]+\.[\w.-]+`)
	versionPattern = regexp.MustCompile(`^[vV]?\d+\.\d+`)
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-`)
	timePattern    = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	datePattern    = regexp.MustCompile(`^\d{1,4}[-/]\d{1,2}`)
	extPattern     = regexp.MustCompile(`^[a-z0-9]{1,5}$`)
)

var urlPrefixes = []string{"http://", "https://", "www.", "mailto:", "tel:", "ftp:"}

// Excluded reports whether a whitespace-delimited token must be emitted
// verbatim.
func Excluded(token string) bool {
	return Reason(token) != RuleNone
}

// Reason returns the name of the first exclusion rule that matches token, or
// RuleNone when the token is eligible for emphasis. Rules run cheapest first.
func Reason(token string) string {
	if utf8.RuneCountInString(token) < 2 {
		return RuleShort
	}
	if strings.TrimSpace(token) == "" {
		return RuleWhitespace
	}
	if numericPattern.MatchString(token) {
		return RuleNumeric
	}

	// Links are often wrapped: (https://...), <www...>
	bare := strings.TrimLeft(token, "([<\"'")
	lower := strings.ToLower(bare)
	for _, p := range urlPrefixes {
		if strings.HasPrefix(lower, p) {
			return RuleURL
		}
	}
	if emailPattern.MatchString(bare) {
		return RuleEmail
	}

	if versionPattern.MatchString(token) {
		return RuleVersion
	}
	if uuidPattern.MatchString(token) {
		return RuleUUID
	}
	if timePattern.MatchString(token) {
		return RuleTime
	}
	if datePattern.MatchString(token) {
		return RuleDate
	}
	if looksLikeFilename(token) {
		return RuleFilename
	}

	core := strings.TrimFunc(token, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if utf8.RuneCountInString(core) < 2 {
		return RuleSymbols
	}
	return RuleNone
}

// looksLikeFilename matches name.ext with exactly one dot and a short
// lowercase extension.
func looksLikeFilename(token string) bool {
	if strings.Count(token, ".") != 1 {
		return false
	}
	i := strings.IndexByte(token, '.')
	if i == 0 {
		return false
	}
	return extPattern.MatchString(token[i+1:])
}
