package parser

import (
	"regexp"
	"strings"
)

// IdentifierKind names which identifier a pattern or result belongs to.
type IdentifierKind string

const (
	KindOrderNumber    IdentifierKind = "order_number"
	KindTrackingNumber IdentifierKind = "tracking_number"
)

// PatternEntry is one recognizer in an ordered cascade. The first pattern
// in a table whose candidate validates wins, even if a later one would
// also match.
type PatternEntry struct {
	Name        string
	Priority    int
	Regex       *regexp.Regexp
	Description string
}

// Candidate is a raw matched substring plus the pattern that produced it.
type Candidate struct {
	Text    string
	Pattern *PatternEntry
}

// FindCandidate returns the first match of the pattern in text. The first
// capture group is used when the pattern declares one, the whole match
// otherwise.
func (p *PatternEntry) FindCandidate(text string) (Candidate, bool) {
	match := p.Regex.FindStringSubmatch(text)
	if match == nil {
		return Candidate{}, false
	}
	raw := match[0]
	if len(match) > 1 {
		raw = match[1]
	}
	if strings.TrimSpace(raw) == "" {
		return Candidate{}, false
	}
	return Candidate{Text: raw, Pattern: p}, true
}

// Family is an order-number format family with its canonical prefixes and
// anchored validator.
type Family struct {
	Name      string
	Prefixes  []string
	Validator *regexp.Regexp
}

// Fragments shared by the order cascade. Horizontal whitespace is tolerated
// between tokens because OCR splits numbers; matches never span lines.
const (
	sp          = `[ \t]*`
	dashDigit   = sp + `-` + sp + `\d`
	optSuffix   = `(?:` + dashDigit + `)?`
	longPrefix  = `(?:EJR|EJC|MH)` + sp + `\d{6}` + optSuffix
	shortPrefix = `(?:AL|R)` + sp + `\d{4}` + optSuffix
	elWrapped   = `EL` + sp + `\d{6}` + sp + `EL` + optSuffix
	orderLabel  = `order` + sp + `(?:number|num|no\.?|#)?` + sp + `[:#.]?` + sp
)

// numberEnd keeps a capture from ending inside a longer digit run, so "-12"
// is never read as "-1".
const numberEnd = `(?:\D|$)`

// orderFamilies are checked together when validating a cleaned candidate.
// Every validator demands at least one -digit suffix segment.
var orderFamilies = []Family{
	{
		Name:      "long_prefix",
		Prefixes:  []string{"EJR", "EJC", "MH"},
		Validator: regexp.MustCompile(`^(?:EJR|EJC|MH)\d{6}-\d$`),
	},
	{
		Name:      "short_prefix",
		Prefixes:  []string{"AL", "R"},
		Validator: regexp.MustCompile(`^(?:AL|R)\d{4}-\d$`),
	},
	{
		Name:      "el_wrapped",
		Prefixes:  []string{"EL"},
		Validator: regexp.MustCompile(`^EL\d{6}EL-\d$`),
	},
	{
		Name:      "leading_two",
		Validator: regexp.MustCompile(`^2\d{9}-\d$`),
	},
	{
		Name:      "nine_digit",
		Validator: regexp.MustCompile(`^\d{9}(?:-\d)+$`),
	},
	{
		Name:      "six_digit",
		Validator: regexp.MustCompile(`^\d{6}-\d$`),
	},
}

// canonicalPrefixes is ordered longest first so "EJR" is tried before "EL"
// and "AL" before "R".
var canonicalPrefixes = []string{"EJR", "EJC", "MH", "AL", "EL", "R"}

// orderPatterns is the order-number cascade, most specific first. Labeled
// and compound forms must come before the bare digit runs, otherwise a
// generic pattern swallows a substring a labeled pattern should own.
var orderPatterns = []*PatternEntry{
	{
		Name:        "labeled_prefixed",
		Priority:    1,
		Regex:       regexp.MustCompile(`(?i)` + orderLabel + `(` + elWrapped + `|` + longPrefix + `|` + shortPrefix + `)` + numberEnd),
		Description: "Prefixed order number after an Order label",
	},
	{
		Name:        "hash_prefixed",
		Priority:    2,
		Regex:       regexp.MustCompile(`(?i)#` + sp + `(` + elWrapped + `|` + longPrefix + `|` + shortPrefix + `)` + numberEnd),
		Description: "Prefixed order number after a # marker",
	},
	{
		Name:        "labeled_numeric",
		Priority:    3,
		Regex:       regexp.MustCompile(`(?i)` + orderLabel + `(\d{6,10}(?:` + dashDigit + `)+)` + numberEnd),
		Description: "Numeric order number with dash suffix after an Order label",
	},
	{
		Name:        "compound_multi_segment",
		Priority:    4,
		Regex:       regexp.MustCompile(`\b(\d{9}(?:` + dashDigit + `){2,})\b`),
		Description: "Nine digits followed by two or more -digit segments",
	},
	{
		Name:        "el_wrapped",
		Priority:    5,
		Regex:       regexp.MustCompile(`(?i)\b(` + elWrapped + `)` + numberEnd),
		Description: "EL + 6 digits + EL with optional -digit",
	},
	{
		Name:        "long_prefix",
		Priority:    6,
		Regex:       regexp.MustCompile(`(?i)\b(` + longPrefix + `)` + numberEnd),
		Description: "EJR/EJC/MH + 6 digits with optional -digit",
	},
	{
		Name:        "short_prefix",
		Priority:    7,
		Regex:       regexp.MustCompile(`(?i)\b(` + shortPrefix + `)\b`),
		Description: "R/AL + 4 digits with optional -digit",
	},
	{
		Name:        "leading_two",
		Priority:    8,
		Regex:       regexp.MustCompile(`\b(2\d{9}` + optSuffix + `)\b`),
		Description: "2 + 9 digits with optional -digit",
	},
	{
		Name:        "nine_digit",
		Priority:    9,
		Regex:       regexp.MustCompile(`\b(\d{9}(?:` + dashDigit + `)*)\b`),
		Description: "9 digits with optional -digit segments",
	},
	{
		Name:        "six_digit",
		Priority:    10,
		Regex:       regexp.MustCompile(`\b(\d{6}` + dashDigit + `)\b`),
		Description: "6 digits with mandatory -digit",
	},
}

// trackingPatterns holds the carrier formats searched in label text.
var trackingPatterns = []*PatternEntry{
	{
		Name:        "usps_9205",
		Priority:    1,
		Regex:       regexp.MustCompile(`(?:^|\D)(9205(?:` + sp + `\d{4}){4}(?:` + sp + `\d{2})?)` + numberEnd),
		Description: "USPS 9205 + four groups of four digits, optional trailing pair",
	},
}

// trackingFilenamePattern accepts a file stem made purely of 20-22 digits.
var trackingFilenamePattern = regexp.MustCompile(`^\d{20,22}$`)

// OrderPatterns returns the order-number cascade in priority order.
func OrderPatterns() []*PatternEntry {
	return append([]*PatternEntry(nil), orderPatterns...)
}

// TrackingPatterns returns the tracking-number text patterns in priority order.
func TrackingPatterns() []*PatternEntry {
	return append([]*PatternEntry(nil), trackingPatterns...)
}

// OrderFamilies returns the order-number format families.
func OrderFamilies() []Family {
	return append([]Family(nil), orderFamilies...)
}

// PatternInfo is a serializable description of one cascade entry.
type PatternInfo struct {
	Kind        IdentifierKind `json:"kind"`
	Priority    int            `json:"priority"`
	Name        string         `json:"name"`
	Regex       string         `json:"regex"`
	Description string         `json:"description"`
}

// ListPatterns returns the order cascade followed by the tracking text
// patterns, each in priority order.
func ListPatterns() []PatternInfo {
	out := make([]PatternInfo, 0, len(orderPatterns)+len(trackingPatterns))
	add := func(kind IdentifierKind, entries []*PatternEntry) {
		for _, p := range entries {
			out = append(out, PatternInfo{
				Kind:        kind,
				Priority:    p.Priority,
				Name:        p.Name,
				Regex:       p.Regex.String(),
				Description: p.Description,
			})
		}
	}
	add(KindOrderNumber, orderPatterns)
	add(KindTrackingNumber, trackingPatterns)
	return out
}
