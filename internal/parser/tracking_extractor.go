package parser

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Sources recorded in tracking diagnostics.
const (
	SourceText     = "text"
	SourceFilename = "filename"
)

// TrackingExtractor locates a carrier tracking number in label text, falling
// back to the document's file name. Some labels lose the tracking block to
// OCR but were saved under their tracking number by the source system.
type TrackingExtractor struct {
	patterns []*PatternEntry
}

// NewTrackingExtractor creates a tracking extractor over the built-in patterns.
func NewTrackingExtractor() *TrackingExtractor {
	return &TrackingExtractor{patterns: trackingPatterns}
}

// Extract searches text first and the file name second. Text matches take
// precedence.
func (e *TrackingExtractor) Extract(text, filename string) Result {
	normalized := Normalize(text)
	diag := Diagnostics{NormalizedText: normalized}

	for _, pattern := range e.patterns {
		candidate, ok := pattern.FindCandidate(normalized)
		if !ok {
			diag.Attempts = append(diag.Attempts, Attempt{Pattern: pattern.Name, Outcome: OutcomeNoMatch})
			continue
		}
		value := stripSpaces(candidate.Text)
		diag.Attempts = append(diag.Attempts, Attempt{
			Pattern:   pattern.Name,
			Outcome:   OutcomeAccepted,
			Candidate: value,
		})
		return Result{
			Kind:        KindTrackingNumber,
			Found:       true,
			Value:       value,
			Pattern:     pattern.Name,
			Source:      SourceText,
			Diagnostics: diag,
		}
	}

	stem := FilenameStem(filename)
	if trackingFilenamePattern.MatchString(stem) {
		diag.Attempts = append(diag.Attempts, Attempt{
			Pattern:   SourceFilename,
			Outcome:   OutcomeAccepted,
			Candidate: stem,
		})
		return Result{
			Kind:        KindTrackingNumber,
			Found:       true,
			Value:       stem,
			Pattern:     SourceFilename,
			Source:      SourceFilename,
			Diagnostics: diag,
		}
	}

	attempt := Attempt{Pattern: SourceFilename, Outcome: OutcomeNoMatch}
	if stem != "" {
		attempt.Outcome = OutcomeRejected
		attempt.Candidate = stem
	}
	diag.Attempts = append(diag.Attempts, attempt)

	return Result{Kind: KindTrackingNumber, Diagnostics: diag}
}

// FilenameStem returns the base name of a document with a trailing .pdf
// extension removed, compared case-insensitively.
func FilenameStem(filename string) string {
	if filename == "" {
		return ""
	}
	base := filepath.Base(filename)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimSpace(base)
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
