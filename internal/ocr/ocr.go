package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config configures rasterization and recognition.
type Config struct {
	Pdftoppm    string   // binary name or absolute path; default "pdftoppm"
	DPI         int      // rasterization DPI, default 300
	MaxPages    int      // 0 = no limit
	Languages   []string // tesseract languages, default eng
	TessdataDir string
	PSM         int // page segmentation mode; 0 keeps the tesseract default
}

// Result is the OCR text of one document.
type Result struct {
	Text     string
	Pages    int
	Engine   string
	Warnings []string
	Duration time.Duration
}

// Extractor turns a label PDF into raw text: rasterize, then recognize each
// page. Failures here are upstream failures for the identifier parser.
type Extractor struct {
	rasterizer Rasterizer
	engine     Engine
	logger     *slog.Logger
}

// NewExtractor wires the pdftoppm rasterizer and the tesseract engine.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	return NewExtractorWith(
		NewPDFToPPM(cfg.Pdftoppm, cfg.DPI, cfg.MaxPages, ExecRunner{Logger: logger}),
		NewTesseractEngine(cfg.Languages, cfg.DPI, cfg.TessdataDir, cfg.PSM),
		logger,
	)
}

// NewExtractorWith builds an extractor from explicit collaborators.
func NewExtractorWith(rasterizer Rasterizer, engine Engine, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{rasterizer: rasterizer, engine: engine, logger: logger}
}

// ExtractPDF returns the concatenated page text of a PDF, pages separated
// by form feeds. A page that fails recognition becomes a warning; the
// document fails only when no page could be rendered or read.
func (e *Extractor) ExtractPDF(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	e.logger.Debug("starting ocr extraction", "path", path, "engine", e.engine.Name())

	pages, err := e.rasterizer.Rasterize(ctx, path)
	if err != nil {
		return Result{Engine: e.engine.Name(), Duration: time.Since(start)}, fmt.Errorf("rasterize %s: %w", path, err)
	}

	var b strings.Builder
	var warnings []string
	recognized := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return Result{Engine: e.engine.Name(), Duration: time.Since(start)}, err
		}
		text, err := e.engine.Recognize(ctx, page.Image)
		if err != nil {
			e.logger.Warn("page recognition failed", "path", path, "page", page.Number, "error", err)
			warnings = append(warnings, fmt.Sprintf("page %d: %v", page.Number, err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(text)
		recognized++
	}

	result := Result{
		Text:     b.String(),
		Pages:    len(pages),
		Engine:   e.engine.Name(),
		Warnings: warnings,
		Duration: time.Since(start),
	}
	if recognized == 0 {
		return result, fmt.Errorf("no readable pages in %s", path)
	}

	e.logger.Debug("ocr extraction complete",
		"path", path,
		"pages", result.Pages,
		"chars", len(result.Text),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}
