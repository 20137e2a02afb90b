package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"label-processor/internal/api"
	"label-processor/internal/database"
	"label-processor/internal/metrics"
	"label-processor/internal/ocr"
	"label-processor/internal/parser"
)

// TextExtractor produces OCR text for a label PDF.
type TextExtractor interface {
	ExtractPDF(ctx context.Context, path string) (ocr.Result, error)
}

// Ledger records which documents have been handled.
type Ledger interface {
	IsProcessed(path, contentHash string) (bool, error)
	Record(doc *database.Document) error
}

// Fulfiller marks orders shipped in the order system.
type Fulfiller interface {
	Fulfill(ctx context.Context, orderNumber, trackingNumber string) (*api.FulfillmentResult, error)
}

// LabelProcessorConfig configures batch behavior
type LabelProcessorConfig struct {
	Workers         int
	DryRun          bool
	Reprocess       bool
	DocumentTimeout time.Duration
}

// LabelProcessor turns a directory of shipping label PDFs into fulfilled
// orders: OCR, identifier extraction, fulfillment, ledger.
type LabelProcessor struct {
	config    LabelProcessorConfig
	ocr       TextExtractor
	extractor *parser.Extractor
	ledger    Ledger
	fulfiller Fulfiller
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// DocumentResult is the outcome of one label.
type DocumentResult struct {
	Path        string                 `json:"path"`
	Filename    string                 `json:"filename"`
	Status      string                 `json:"status"`
	Report      *parser.Report         `json:"report,omitempty"`
	Fulfillment *api.FulfillmentResult `json:"fulfillment,omitempty"`
	Pages       int                    `json:"pages,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Err         error                  `json:"-"`
}

// RunSummary describes one batch run.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	Dir       string           `json:"dir"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Total     int              `json:"total"`
	Fulfilled int              `json:"fulfilled"`
	Extracted int              `json:"extracted"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Errors    int              `json:"errors"`
	Results   []DocumentResult `json:"results"`
}

func (s *RunSummary) add(r DocumentResult) {
	s.Total++
	switch r.Status {
	case database.StatusFulfilled:
		s.Fulfilled++
	case database.StatusExtracted:
		s.Extracted++
	case database.StatusFailed:
		s.Failed++
	case database.StatusSkipped:
		s.Skipped++
	default:
		s.Errors++
	}
	s.Results = append(s.Results, r)
}

// NewLabelProcessor creates a processor. A nil fulfiller behaves like a dry run.
func NewLabelProcessor(
	config LabelProcessorConfig,
	textExtractor TextExtractor,
	ledger Ledger,
	fulfiller Fulfiller,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LabelProcessor {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelProcessor{
		config:    config,
		ocr:       textExtractor,
		extractor: parser.NewExtractor(),
		ledger:    ledger,
		fulfiller: fulfiller,
		metrics:   m,
		logger:    logger,
	}
}

// FindLabels returns the PDF files under dir in lexical order.
func FindLabels(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return paths, nil
}

// ProcessDirectory processes every label PDF under dir. A failing document
// never aborts the run; only cancellation or an unreadable directory does.
func (p *LabelProcessor) ProcessDirectory(ctx context.Context, dir string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Dir:       dir,
		StartedAt: time.Now(),
	}
	logger := p.logger.With("run_id", summary.RunID)

	paths, err := FindLabels(dir)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting label processing run",
		"dir", dir,
		"documents", len(paths),
		"workers", p.config.Workers,
		"dry_run", p.config.DryRun,
		"reprocess", p.config.Reprocess)

	results := make([]DocumentResult, len(paths))
	scheduled := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			results[i] = p.processFile(gctx, summary.RunID, path)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results[:scheduled] {
		summary.add(r)
	}
	summary.Duration = time.Since(summary.StartedAt)

	logger.Info("Label processing run completed",
		"duration", summary.Duration,
		"total", summary.Total,
		"fulfilled", summary.Fulfilled,
		"extracted", summary.Extracted,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"errors", summary.Errors)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// Watch runs ProcessDirectory immediately and then on every interval tick
// until ctx is canceled.
func (p *LabelProcessor) Watch(ctx context.Context, dir string, interval time.Duration, onRun func(*RunSummary)) error {
	if interval <= 0 {
		return errors.New("watch interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := p.ProcessDirectory(ctx, dir)
		if ctx.Err() != nil {
			p.logger.Info("Label watch stopped")
			return nil
		}
		if err != nil {
			p.logger.Error("Label processing run failed", "dir", dir, "error", err)
		} else if onRun != nil {
			onRun(summary)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Label watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessText runs extraction, fulfillment and recording for text that has
// already been through OCR.
func (p *LabelProcessor) ProcessText(ctx context.Context, name, text string) DocumentResult {
	start := time.Now()
	runID := uuid.NewString()
	doc := &database.Document{
		Path:        name,
		Filename:    filepath.Base(name),
		ContentHash: hashBytes([]byte(text)),
		RunID:       runID,
	}
	result := DocumentResult{Path: name, Filename: doc.Filename}
	p.handleText(ctx, p.logger.With("run_id", runID, "file", doc.Filename), doc, &result, text)
	return p.finish(doc, result, start)
}

func (p *LabelProcessor) processFile(ctx context.Context, runID, path string) DocumentResult {
	start := time.Now()
	filename := filepath.Base(path)
	logger := p.logger.With("run_id", runID, "file", filename)
	result := DocumentResult{Path: path, Filename: filename}

	hash, size, err := hashFile(path)
	if err != nil {
		logger.Error("Failed to read label", "error", err)
		result.Status = database.StatusError
		result.Err = err
		result.Error = err.Error()
		result.Duration = time.Since(start)
		p.metrics.IncrementDocument(result.Status)
		return result
	}

	doc := &database.Document{Path: path, Filename: filename, ContentHash: hash, RunID: runID}

	if size == 0 {
		result.Status = database.StatusSkipped
		result.Error = "empty file"
		return p.finish(doc, result, start)
	}

	if !p.config.Reprocess && p.ledger != nil {
		processed, err := p.ledger.IsProcessed(path, hash)
		if err != nil {
			logger.Warn("Failed to check if label was processed", "error", err)
		}
		if processed {
			logger.Debug("Label already processed")
			result.Status = database.StatusSkipped
			result.Duration = time.Since(start)
			p.metrics.IncrementDocument(result.Status)
			return result
		}
	}

	ocrCtx := ctx
	if p.config.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ocrCtx, cancel = context.WithTimeout(ctx, p.config.DocumentTimeout)
		defer cancel()
	}

	ocrStart := time.Now()
	ocrResult, err := p.ocr.ExtractPDF(ocrCtx, path)
	p.metrics.ObserveStage("ocr", time.Since(ocrStart))
	result.Pages = ocrResult.Pages
	result.Warnings = ocrResult.Warnings
	doc.Pages = ocrResult.Pages
	if err != nil {
		logger.Error("OCR failed", "error", err)
		p.fail(doc, &result, &parser.UpstreamError{Stage: "ocr", Err: err})
		return p.finish(doc, result, start)
	}

	p.handleText(ctx, logger, doc, &result, ocrResult.Text)
	return p.finish(doc, result, start)
}

// handleText is the shared tail of file and text processing.
func (p *LabelProcessor) handleText(ctx context.Context, logger *slog.Logger, doc *database.Document, result *DocumentResult, text string) {
	extractStart := time.Now()
	report := p.extractor.Extract(text, doc.Filename)
	p.metrics.ObserveStage("extract", time.Since(extractStart))
	result.Report = report

	p.metrics.ObserveIdentifier(string(parser.KindOrderNumber), report.Order.Found)
	p.metrics.ObserveIdentifier(string(parser.KindTrackingNumber), report.Tracking.Found)
	if report.Order.Found {
		p.metrics.IncrementPatternHit(report.Order.Pattern)
	}

	doc.OrderNumber = report.OrderNumber()
	doc.OrderPattern = report.Order.Pattern
	doc.TrackingNumber = report.TrackingNumber()
	doc.TrackingSource = report.Tracking.Source
	for _, kind := range report.Missing() {
		doc.Missing = append(doc.Missing, string(kind))
	}
	if diag, err := json.Marshal(reportDiagnostics{Order: report.Order.Diagnostics, Tracking: report.Tracking.Diagnostics}); err == nil {
		doc.Diagnostics = diag
	}

	if !report.Success() {
		logger.Warn("Label identifiers missing",
			"missing", doc.Missing,
			"order_number", doc.OrderNumber,
			"tracking_number", doc.TrackingNumber)
		result.Status = database.StatusFailed
		result.Err = report.Err()
		result.Error = result.Err.Error()
		return
	}

	logger.Info("Extracted label identifiers",
		"order_number", doc.OrderNumber,
		"order_pattern", doc.OrderPattern,
		"tracking_number", doc.TrackingNumber,
		"tracking_source", doc.TrackingSource)

	if p.config.DryRun || p.fulfiller == nil {
		result.Status = database.StatusExtracted
		return
	}

	fulfillStart := time.Now()
	fulfillment, err := p.fulfiller.Fulfill(ctx, doc.OrderNumber, doc.TrackingNumber)
	p.metrics.ObserveStage("fulfill", time.Since(fulfillStart))
	if fulfillment != nil {
		result.Fulfillment = fulfillment
		doc.FulfillmentOrderID = fulfillment.OrderID
		doc.Carrier = fulfillment.CarrierCode
	}
	if errors.Is(err, api.ErrAssignFailed) && fulfillment != nil {
		// The order is shipped; retrying would mark it shipped again.
		logger.Warn("Order shipped but assignment failed", "order_number", doc.OrderNumber, "error", err)
		result.Warnings = append(result.Warnings, err.Error())
		doc.ErrorMessage = err.Error()
		result.Status = database.StatusFulfilled
		return
	}
	if err != nil {
		logger.Error("Fulfillment failed", "order_number", doc.OrderNumber, "error", err)
		p.fail(doc, result, &parser.UpstreamError{Stage: "fulfillment", Err: err})
		return
	}
	result.Status = database.StatusFulfilled
}

type reportDiagnostics struct {
	Order    parser.Diagnostics `json:"order"`
	Tracking parser.Diagnostics `json:"tracking"`
}

func (p *LabelProcessor) fail(doc *database.Document, result *DocumentResult, err error) {
	result.Status = database.StatusError
	result.Err = err
	result.Error = err.Error()
	doc.ErrorMessage = err.Error()
}

// finish records the document in the ledger and metrics.
func (p *LabelProcessor) finish(doc *database.Document, result DocumentResult, start time.Time) DocumentResult {
	result.Duration = time.Since(start)
	doc.Status = result.Status
	if doc.ErrorMessage == "" {
		doc.ErrorMessage = result.Error
	}
	doc.DurationMS = result.Duration.Milliseconds()

	if p.ledger != nil {
		if err := p.ledger.Record(doc); err != nil {
			p.logger.Error("Failed to record label in ledger", "file", doc.Filename, "error", err)
		}
	}

	p.metrics.IncrementDocument(result.Status)
	p.metrics.ObserveStage("total", result.Duration)
	return result
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
