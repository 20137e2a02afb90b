package workers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"label-processor/internal/api"
	"label-processor/internal/database"
	"label-processor/internal/metrics"
	"label-processor/internal/ocr"
	"label-processor/internal/parser"
)

const completeLabel = "SHIP TO: JANE DOE\nOrder #EJR123456-1\nUSPS TRACKING # EP\n9205 1234 5678 9012 3456 78\n"

// fakeOCR returns canned text per file name.
type fakeOCR struct {
	mu    sync.Mutex
	texts map[string]string
	errs  map[string]error
	calls int
}

func (f *fakeOCR) ExtractPDF(ctx context.Context, path string) (ocr.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	name := filepath.Base(path)
	if err := f.errs[name]; err != nil {
		return ocr.Result{}, err
	}
	return ocr.Result{Text: f.texts[name], Pages: 1}, nil
}

type fakeFulfiller struct {
	mu        sync.Mutex
	calls     []string
	err       error
	assignErr error
}

func (f *fakeFulfiller) Fulfill(ctx context.Context, orderNumber, trackingNumber string) (*api.FulfillmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderNumber+"|"+trackingNumber)
	if f.err != nil {
		return nil, f.err
	}
	result := &api.FulfillmentResult{OrderID: 7, OrderNumber: orderNumber, TrackingNumber: trackingNumber, CarrierCode: "usps"}
	if f.assignErr != nil {
		return result, fmt.Errorf("%w: %w", api.ErrAssignFailed, f.assignErr)
	}
	result.Assigned = true
	return result, nil
}

func writeLabels(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 "+name), 0o644))
	}
	return dir
}

func openLedger(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFindLabels(t *testing.T) {
	dir := writeLabels(t, "b.pdf", "a.PDF", "notes.txt", "nested/c.pdf")

	paths, err := FindLabels(dir)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		rel, _ := filepath.Rel(dir, p)
		names = append(names, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"a.PDF", "b.pdf", "nested/c.pdf"}, names)

	_, err = FindLabels(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLabelProcessor_ProcessDirectory(t *testing.T) {
	dir := writeLabels(t,
		"complete.pdf",
		"no-order.pdf",
		"12345678901234567890.pdf",
		"broken.pdf",
	)
	// zero-byte files are skipped without OCR
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.pdf"), nil, 0o644))

	ocrStub := &fakeOCR{
		texts: map[string]string{
			"complete.pdf":             completeLabel,
			"no-order.pdf":             "9205 1234 5678 9012 3456 78",
			"12345678901234567890.pdf": "Order: R3817-1",
		},
		errs: map[string]error{"broken.pdf": errors.New("pdftoppm failed")},
	}
	fulfiller := &fakeFulfiller{}
	db := openLedger(t)
	m := metrics.New()

	processor := NewLabelProcessor(LabelProcessorConfig{Workers: 3}, ocrStub, db.Documents, fulfiller, m, nil)

	summary, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Fulfilled)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 4, ocrStub.calls)

	assert.ElementsMatch(t, []string{
		"EJR123456-1|9205123456789012345678",
		"R3817-1|12345678901234567890",
	}, fulfiller.calls)

	complete, err := db.Documents.Get(filepath.Join(dir, "complete.pdf"))
	require.NoError(t, err)
	require.NotNil(t, complete)
	assert.Equal(t, database.StatusFulfilled, complete.Status)
	assert.Equal(t, "EJR123456-1", complete.OrderNumber)
	assert.Equal(t, int64(7), complete.FulfillmentOrderID)
	assert.Equal(t, summary.RunID, complete.RunID)

	noOrder, err := db.Documents.Get(filepath.Join(dir, "no-order.pdf"))
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, noOrder.Status)
	assert.Equal(t, []string{"order_number"}, noOrder.Missing)
	assert.Contains(t, noOrder.ErrorMessage, "order number not found")
	assert.Contains(t, string(noOrder.Diagnostics), "labeled_prefixed")

	fallback, err := db.Documents.Get(filepath.Join(dir, "12345678901234567890.pdf"))
	require.NoError(t, err)
	assert.Equal(t, parser.SourceFilename, fallback.TrackingSource)

	broken, err := db.Documents.Get(filepath.Join(dir, "broken.pdf"))
	require.NoError(t, err)
	assert.Equal(t, database.StatusError, broken.Status)
	assert.Equal(t, "ocr: pdftoppm failed", broken.ErrorMessage)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Documents.WithLabelValues(database.StatusFulfilled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Identifiers.WithLabelValues("order_number", "not_found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrderPatternHits.WithLabelValues("labeled_prefixed")))
}

func TestLabelProcessor_SkipsProcessedUnlessReprocess(t *testing.T) {
	dir := writeLabels(t, "complete.pdf")
	ocrStub := &fakeOCR{texts: map[string]string{"complete.pdf": completeLabel}}
	db := openLedger(t)

	processor := NewLabelProcessor(LabelProcessorConfig{Workers: 1}, ocrStub, db.Documents, &fakeFulfiller{}, nil, nil)

	first, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Fulfilled)

	second, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, ocrStub.calls)

	reprocessor := NewLabelProcessor(LabelProcessorConfig{Workers: 1, Reprocess: true}, ocrStub, db.Documents, &fakeFulfiller{}, nil, nil)
	third, err := reprocessor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Fulfilled)
	assert.Equal(t, 2, ocrStub.calls)
}

func TestLabelProcessor_DryRun(t *testing.T) {
	dir := writeLabels(t, "complete.pdf")
	ocrStub := &fakeOCR{texts: map[string]string{"complete.pdf": completeLabel}}
	fulfiller := &fakeFulfiller{}
	db := openLedger(t)

	processor := NewLabelProcessor(LabelProcessorConfig{DryRun: true}, ocrStub, db.Documents, fulfiller, nil, nil)
	summary, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Extracted)
	assert.Empty(t, fulfiller.calls)

	// Dry-run extractions are picked up again by a later real run.
	path := filepath.Join(dir, "complete.pdf")
	hash, _, err := hashFile(path)
	require.NoError(t, err)
	processed, err := db.Documents.IsProcessed(path, hash)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestLabelProcessor_FulfillmentError(t *testing.T) {
	dir := writeLabels(t, "complete.pdf")
	ocrStub := &fakeOCR{texts: map[string]string{"complete.pdf": completeLabel}}
	fulfiller := &fakeFulfiller{err: api.ErrOrderNotFound}

	processor := NewLabelProcessor(LabelProcessorConfig{}, ocrStub, nil, fulfiller, nil, nil)
	summary, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)

	result := summary.Results[0]
	assert.Equal(t, database.StatusError, result.Status)
	assert.ErrorIs(t, result.Err, api.ErrOrderNotFound)

	var upstream *parser.UpstreamError
	require.ErrorAs(t, result.Err, &upstream)
	assert.Equal(t, "fulfillment", upstream.Stage)
}

func TestLabelProcessor_AssignmentFailureIsFinal(t *testing.T) {
	dir := writeLabels(t, "complete.pdf")
	ocrStub := &fakeOCR{texts: map[string]string{"complete.pdf": completeLabel}}
	fulfiller := &fakeFulfiller{assignErr: errors.New("API error (400)")}
	db := openLedger(t)

	processor := NewLabelProcessor(LabelProcessorConfig{Workers: 1}, ocrStub, db.Documents, fulfiller, nil, nil)
	summary, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)

	result := summary.Results[0]
	assert.Equal(t, database.StatusFulfilled, result.Status)
	assert.Equal(t, 1, summary.Fulfilled)
	assert.Zero(t, summary.Errors)
	require.NotNil(t, result.Fulfillment)
	assert.False(t, result.Fulfillment.Assigned)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "not assigned")

	doc, err := db.Documents.Get(filepath.Join(dir, "complete.pdf"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, database.StatusFulfilled, doc.Status)
	assert.Equal(t, int64(7), doc.FulfillmentOrderID)
	assert.Contains(t, doc.ErrorMessage, "API error (400)")

	// A second run must not mark the order shipped again.
	second, err := processor.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, fulfiller.calls, 1)
}

func TestLabelProcessor_Canceled(t *testing.T) {
	dir := writeLabels(t, "a.pdf", "b.pdf")
	processor := NewLabelProcessor(LabelProcessorConfig{}, &fakeOCR{}, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := processor.ProcessDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Total)
}

func TestLabelProcessor_ProcessText(t *testing.T) {
	db := openLedger(t)
	processor := NewLabelProcessor(LabelProcessorConfig{DryRun: true}, nil, db.Documents, nil, nil, nil)

	result := processor.ProcessText(context.Background(), "scan-001.txt", completeLabel)
	assert.Equal(t, database.StatusExtracted, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, "EJR123456-1", result.Report.OrderNumber())
	assert.Equal(t, "9205123456789012345678", result.Report.TrackingNumber())

	doc, err := db.Documents.Get("scan-001.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, database.StatusExtracted, doc.Status)
}

func TestLabelProcessor_Watch(t *testing.T) {
	dir := writeLabels(t, "complete.pdf")
	ocrStub := &fakeOCR{texts: map[string]string{"complete.pdf": completeLabel}}
	processor := NewLabelProcessor(LabelProcessorConfig{DryRun: true}, ocrStub, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	err := processor.Watch(ctx, dir, time.Millisecond, func(s *RunSummary) {
		runs++
		if runs == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)

	assert.Error(t, processor.Watch(context.Background(), dir, 0, nil))
}
