package parser

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// dashFolder maps every Unicode dash glyph OCR tends to produce onto the
// ASCII hyphen. Everything else passes through untouched.
var dashFolder = runes.Map(func(r rune) rune {
	if isDash(r) {
		return '-'
	}
	return r
})

// isDash reports whether r is a dash-like glyph (em dash, en dash, figure
// dash, non-breaking hyphen, minus sign, ...).
func isDash(r rune) bool {
	if r == '-' {
		return false
	}
	return unicode.Is(unicode.Pd, r) || r == '−' || r == '⁃' || r == '﹣' || r == '－'
}

// Normalize canonicalizes dash variants in raw OCR text. It is total and
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	out, _, err := transform.String(dashFolder, raw)
	if err != nil {
		// runes.Map never fails on valid input; fall back to the raw text
		return raw
	}
	return out
}
