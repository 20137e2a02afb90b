package parser

import (
	"strings"
	"unicode"
)

// OrderExtractor runs the order-number cascade over normalized text.
type OrderExtractor struct {
	patterns []*PatternEntry
	families []Family
}

// NewOrderExtractor creates an extractor over the built-in cascade.
func NewOrderExtractor() *OrderExtractor {
	return &OrderExtractor{
		patterns: orderPatterns,
		families: orderFamilies,
	}
}

// Extract finds the most plausible order number in text. The text is
// normalized first, so raw OCR output may be passed directly.
func (e *OrderExtractor) Extract(text string) Result {
	normalized := Normalize(text)
	diag := Diagnostics{NormalizedText: normalized}

	for _, pattern := range e.patterns {
		candidate, ok := pattern.FindCandidate(normalized)
		if !ok {
			diag.Attempts = append(diag.Attempts, Attempt{Pattern: pattern.Name, Outcome: OutcomeNoMatch})
			continue
		}

		cleaned := CanonicalizeOrderNumber(candidate.Text)
		family, valid := e.validate(cleaned)
		if !valid {
			// A plausible but invalid match (e.g. a bare 9-digit run) is
			// not a failure of the cascade, only of this pattern.
			diag.Attempts = append(diag.Attempts, Attempt{
				Pattern:   pattern.Name,
				Outcome:   OutcomeRejected,
				Candidate: cleaned,
			})
			continue
		}

		diag.Attempts = append(diag.Attempts, Attempt{
			Pattern:   pattern.Name,
			Outcome:   OutcomeAccepted,
			Candidate: cleaned,
		})
		return Result{
			Kind:        KindOrderNumber,
			Found:       true,
			Value:       cleaned,
			Pattern:     pattern.Name,
			Family:      family,
			Diagnostics: diag,
		}
	}

	return Result{Kind: KindOrderNumber, Diagnostics: diag}
}

// Validate reports whether s is a canonical order number of any family.
func (e *OrderExtractor) Validate(s string) bool {
	_, ok := e.validate(s)
	return ok
}

func (e *OrderExtractor) validate(s string) (string, bool) {
	for _, family := range e.families {
		if family.Validator.MatchString(s) {
			return family.Name, true
		}
	}
	return "", false
}

// CanonicalizeOrderNumber strips whitespace, folds residual dash glyphs and
// rewrites a known prefix to its canonical case. Digits are never touched.
func CanonicalizeOrderNumber(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, Normalize(raw))

	for _, prefix := range canonicalPrefixes {
		if len(cleaned) < len(prefix) || !strings.EqualFold(cleaned[:len(prefix)], prefix) {
			continue
		}
		if prefix == "EL" {
			return upperEL(cleaned)
		}
		return prefix + cleaned[len(prefix):]
	}
	return cleaned
}

// upperEL uppercases every "el" occurrence, covering the trailing EL of
// the wrapped family as well as the leading one.
func upperEL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if i+1 < len(s) && (s[i] == 'e' || s[i] == 'E') && (s[i+1] == 'l' || s[i+1] == 'L') {
			b.WriteString("EL")
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
