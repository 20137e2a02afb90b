package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes text in a single page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TesseractEngine implements Engine with a gosseract client per call, so it
// is safe to share between workers.
type TesseractEngine struct {
	Languages     []string
	DPI           int
	TessdataDir   string
	PageSegMode   int
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine.
func NewTesseractEngine(languages []string, dpi int, tessdataDir string, psm int) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{
		Languages:     languages,
		DPI:           dpi,
		TessdataDir:   tessdataDir,
		PageSegMode:   psm,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs OCR over one PNG page.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := e.clientFactory()
	defer c.Close()

	if e.TessdataDir != "" {
		if err := c.SetTessdataPrefix(e.TessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.Languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if e.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.PageSegMode)); err != nil {
			return "", fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if e.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
