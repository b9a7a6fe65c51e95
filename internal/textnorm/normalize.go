// Package textnorm cleans noisy article text before it is embedded.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// markupRegex matches markup-tag-like substrings.
var markupRegex = regexp.MustCompile(`<[^>]+>`)

// stripNoise deletes every rune outside the allow-list.
var stripNoise = runes.Remove(runes.Predicate(func(r rune) bool {
	return !InAllowList(r)
}))

// InAllowList reports whether r survives normalization: ASCII, CJK ideographs,
// CJK symbols and punctuation, and half/full-width forms. Anything else is
// treated as garbled-encoding noise.
func InAllowList(r rune) bool {
	switch {
	case r <= 0x7F:
		return true
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case r >= 0x3000 && r <= 0x303F:
		return true
	case r >= 0xFF00 && r <= 0xFFEF:
		return true
	}
	return false
}

// Normalize removes markup, drops characters outside the allow-list and
// collapses whitespace runs to a single space. It never fails and is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = markupRegex.ReplaceAllString(text, "")
	text = RemoveNoise(text)
	return CollapseWhitespace(text)
}

// RemoveNoise deletes runes outside the allow-list without touching anything else.
func RemoveNoise(text string) string {
	out, _, err := transform.String(stripNoise, text)
	if err != nil {
		// runes.Remove cannot fail on a string source; fall back to a manual pass.
		return strings.Map(func(r rune) rune {
			if InAllowList(r) {
				return r
			}
			return -1
		}, text)
	}
	return out
}

// CollapseWhitespace replaces every run of Unicode whitespace with one space
// and trims both ends.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
