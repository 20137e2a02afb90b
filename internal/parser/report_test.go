package parser

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLabel = `USPS PRIORITY MAIL
SHIP TO: JANE DOE
123 MAIN ST
SPRINGFIELD IL 62704
Order #EJR123456—1
USPS TRACKING #
9205 5901 6491 7312 3456 71
`

func TestExtract_CompleteReport(t *testing.T) {
	report := Extract(sampleLabel, "scan-001.pdf")

	require.True(t, report.Success())
	assert.Equal(t, "EJR123456-1", report.OrderNumber())
	assert.Equal(t, "9205590164917312345671", report.TrackingNumber())
	assert.Empty(t, report.Missing())
	assert.NoError(t, report.Err())
	assert.Equal(t, "scan-001.pdf: order=EJR123456-1 tracking=9205590164917312345671", report.String())
}

func TestExtract_EmptyTextReportsBothMissing(t *testing.T) {
	report := Extract("", "label.pdf")

	assert.False(t, report.Success())
	assert.Empty(t, report.OrderNumber())
	assert.Empty(t, report.TrackingNumber())
	assert.Equal(t, []IdentifierKind{KindOrderNumber, KindTrackingNumber}, report.Missing())

	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderNumberNotFound)
	assert.ErrorIs(t, err, ErrTrackingNumberNotFound)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Len(t, report.Order.Diagnostics.Attempts, len(OrderPatterns()))
	for _, attempt := range report.Order.Diagnostics.Attempts {
		assert.Equal(t, OutcomeNoMatch, attempt.Outcome)
	}
}

func TestExtract_FilenameFallbackCompletesReport(t *testing.T) {
	report := Extract("Order: R3817-1\n(tracking block unreadable)", "12345678901234567890.pdf")

	require.True(t, report.Success())
	assert.Equal(t, "R3817-1", report.OrderNumber())
	assert.Equal(t, "12345678901234567890", report.TrackingNumber())
	assert.Equal(t, SourceFilename, report.Tracking.Source)
}

func TestExtract_MissingOrderOnly(t *testing.T) {
	report := Extract("9205 5901 6491 7312 3456 71", "label.pdf")

	assert.False(t, report.Success())
	assert.Equal(t, []IdentifierKind{KindOrderNumber}, report.Missing())
	assert.ErrorIs(t, report.Err(), ErrOrderNumberNotFound)
	assert.NotErrorIs(t, report.Err(), ErrTrackingNumberNotFound)
	assert.Contains(t, report.String(), "missing")
}

func TestExtractor_ConcurrentUseIsDeterministic(t *testing.T) {
	extractor := NewExtractor()
	want := extractor.Extract(sampleLabel, "scan-001.pdf")

	var wg sync.WaitGroup
	results := make([]*Report, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = extractor.Extract(sampleLabel, "scan-001.pdf")
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("pdftoppm: exit status 1")
	err := &UpstreamError{Stage: "rasterize", Err: cause}

	assert.Equal(t, "rasterize: pdftoppm: exit status 1", err.Error())
	assert.ErrorIs(t, err, cause)
}
