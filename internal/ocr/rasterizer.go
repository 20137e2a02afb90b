package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Page is one rendered page image.
type Page struct {
	Number int
	Image  []byte
}

// Rasterizer renders a PDF into page images.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) ([]Page, error)
}

// PDFToPPM renders pages with poppler's pdftoppm.
type PDFToPPM struct {
	Binary   string
	DPI      int
	MaxPages int
	runner   Runner
}

// NewPDFToPPM creates a rasterizer. A nil runner uses ExecRunner.
func NewPDFToPPM(binary string, dpi, maxPages int, runner Runner) *PDFToPPM {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDFToPPM{Binary: binary, DPI: dpi, MaxPages: maxPages, runner: runner}
}

// Rasterize writes PNG pages to a temp dir, reads them back in page order
// and removes the temp dir.
func (p *PDFToPPM) Rasterize(ctx context.Context, path string) ([]Page, error) {
	tmpDir, err := os.MkdirTemp("", "label-pp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(p.DPI), "-png"}
	if p.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.MaxPages))
	}
	args = append(args, path, prefix)

	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	if _, errb, err := p.runner.Run(ctx, p.Binary, args...); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", p.Binary, err, strings.TrimSpace(string(errb)))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no pages rendered from %s", path)
	}

	pages := make([]Page, 0, len(matches))
	for _, m := range matches {
		n, err := pageNumber(prefix, m)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", n, err)
		}
		pages = append(pages, Page{Number: n, Image: data})
	}
	// pdftoppm zero-pads page numbers by page count, so sort numerically
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })

	if p.MaxPages > 0 && len(pages) > p.MaxPages {
		pages = pages[:p.MaxPages]
	}
	return pages, nil
}

func pageNumber(prefix, file string) (int, error) {
	s := strings.TrimSuffix(strings.TrimPrefix(file, prefix+"-"), ".png")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unexpected page file %q", filepath.Base(file))
	}
	return n, nil
}
