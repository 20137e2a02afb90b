package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNumberNotFound means no pattern in the cascade produced a valid order number.
	ErrOrderNumberNotFound = errors.New("order number not found")
	// ErrTrackingNumberNotFound means neither the text nor the file name held a tracking number.
	ErrTrackingNumberNotFound = errors.New("tracking number not found")
)

// NotFoundError carries the diagnostics of a failed recognition. It unwraps
// to the sentinel for its kind.
type NotFoundError struct {
	Kind        IdentifierKind
	Diagnostics Diagnostics
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v (tried %d patterns)", e.Unwrap(), len(e.Diagnostics.Attempts))
}

func (e *NotFoundError) Unwrap() error {
	if e.Kind == KindTrackingNumber {
		return ErrTrackingNumberNotFound
	}
	return ErrOrderNumberNotFound
}

// UpstreamError wraps a failure from a collaborator feeding the extractor
// (rasterizer, OCR engine, fulfillment API). It is passed through opaquely.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
