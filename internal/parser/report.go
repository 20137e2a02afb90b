package parser

import (
	"errors"
	"fmt"
)

// Attempt outcomes recorded in diagnostics.
const (
	OutcomeNoMatch  = "no_match"
	OutcomeRejected = "rejected"
	OutcomeAccepted = "accepted"
)

// Attempt records what one pattern did during a cascade run.
type Attempt struct {
	Pattern   string `json:"pattern"`
	Outcome   string `json:"outcome"`
	Candidate string `json:"candidate,omitempty"`
}

// Diagnostics is the trace kept for operator troubleshooting: the text the
// cascade saw and every pattern it tried, in order.
type Diagnostics struct {
	NormalizedText string    `json:"normalized_text"`
	Attempts       []Attempt `json:"attempts"`
}

// PatternsTried returns the names of every attempted pattern in order.
func (d Diagnostics) PatternsTried() []string {
	names := make([]string, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		names = append(names, a.Pattern)
	}
	return names
}

// Result is the outcome of one recognizer: Found with a canonical value or
// not found with diagnostics.
type Result struct {
	Kind        IdentifierKind `json:"kind"`
	Found       bool           `json:"found"`
	Value       string         `json:"value,omitempty"`
	Pattern     string         `json:"pattern,omitempty"`
	Family      string         `json:"family,omitempty"`
	Source      string         `json:"source,omitempty"`
	Diagnostics Diagnostics    `json:"diagnostics"`
}

// Err returns nil when the identifier was found and a *NotFoundError otherwise.
func (r Result) Err() error {
	if r.Found {
		return nil
	}
	return &NotFoundError{Kind: r.Kind, Diagnostics: r.Diagnostics}
}

// Report combines both recognizer results for one document.
type Report struct {
	Filename string `json:"filename"`
	Order    Result `json:"order"`
	Tracking Result `json:"tracking"`
}

// Success reports whether both identifiers were found.
func (r *Report) Success() bool {
	return r.Order.Found && r.Tracking.Found
}

// OrderNumber returns the canonical order number, or "" when absent.
func (r *Report) OrderNumber() string {
	if !r.Order.Found {
		return ""
	}
	return r.Order.Value
}

// TrackingNumber returns the canonical tracking number, or "" when absent.
func (r *Report) TrackingNumber() string {
	if !r.Tracking.Found {
		return ""
	}
	return r.Tracking.Value
}

// Missing lists the identifier kinds that were not found.
func (r *Report) Missing() []IdentifierKind {
	var missing []IdentifierKind
	if !r.Order.Found {
		missing = append(missing, KindOrderNumber)
	}
	if !r.Tracking.Found {
		missing = append(missing, KindTrackingNumber)
	}
	return missing
}

// Err joins the not-found errors of the missing identifiers. It is nil
// when the report is complete.
func (r *Report) Err() error {
	return errors.Join(r.Order.Err(), r.Tracking.Err())
}

// String renders a one-line summary suitable for logs.
func (r *Report) String() string {
	if r.Success() {
		return fmt.Sprintf("%s: order=%s tracking=%s", r.Filename, r.Order.Value, r.Tracking.Value)
	}
	return fmt.Sprintf("%s: missing %v", r.Filename, r.Missing())
}

// Extractor runs both recognizers over one document.
type Extractor struct {
	orders   *OrderExtractor
	tracking *TrackingExtractor
}

// NewExtractor creates an extractor with the built-in pattern tables. It is
// safe for concurrent use.
func NewExtractor() *Extractor {
	return &Extractor{
		orders:   NewOrderExtractor(),
		tracking: NewTrackingExtractor(),
	}
}

// Extract recognizes the order and tracking numbers in raw OCR text. The
// file name feeds the tracking fallback.
func (e *Extractor) Extract(text, filename string) *Report {
	return &Report{
		Filename: filename,
		Order:    e.orders.Extract(text),
		Tracking: e.tracking.Extract(text, filename),
	}
}

var defaultExtractor = NewExtractor()

// Extract runs the default extractor.
func Extract(text, filename string) *Report {
	return defaultExtractor.Extract(text, filename)
}
