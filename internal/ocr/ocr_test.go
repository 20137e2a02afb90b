package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner fakes pdftoppm by writing one file per page next to the
// requested output prefix.
type stubRunner struct {
	pages int
	err   error
	calls [][]string
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if s.err != nil {
		return nil, []byte("Syntax Error: Couldn't read xref table"), s.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= s.pages; i++ {
		name := fmt.Sprintf("%s-%02d.png", prefix, i)
		if err := os.WriteFile(name, []byte(fmt.Sprintf("image-%d", i)), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

// stubEngine "recognizes" an image by echoing its bytes.
type stubEngine struct {
	failOn map[string]bool
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if s.failOn[string(image)] {
		return "", errors.New("tesseract crashed")
	}
	return "text of " + string(image), nil
}

func TestPDFToPPM_Rasterize(t *testing.T) {
	runner := &stubRunner{pages: 12}
	r := NewPDFToPPM("", 0, 0, runner)

	pages, err := r.Rasterize(context.Background(), "label.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 12)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Number)
		assert.Equal(t, fmt.Sprintf("image-%d", i+1), string(p.Image))
	}

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, []string{"pdftoppm", "-r", "300", "-png", "label.pdf"}, call[:5])
}

func TestPDFToPPM_MaxPages(t *testing.T) {
	runner := &stubRunner{pages: 3}
	r := NewPDFToPPM("/usr/bin/pdftoppm", 150, 1, runner)

	pages, err := r.Rasterize(context.Background(), "label.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 1)

	call := runner.calls[0]
	assert.Equal(t, "/usr/bin/pdftoppm", call[0])
	assert.Contains(t, strings.Join(call, " "), "-r 150 -png -l 1 label.pdf")
}

func TestPDFToPPM_Errors(t *testing.T) {
	t.Run("command failure", func(t *testing.T) {
		r := NewPDFToPPM("", 0, 0, &stubRunner{err: errors.New("exit status 1")})
		_, err := r.Rasterize(context.Background(), "broken.pdf")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "xref table")
	})

	t.Run("no pages", func(t *testing.T) {
		r := NewPDFToPPM("", 0, 0, &stubRunner{pages: 0})
		_, err := r.Rasterize(context.Background(), "empty.pdf")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no pages rendered")
	})
}

func TestExtractor_ExtractPDF(t *testing.T) {
	extractor := NewExtractorWith(NewPDFToPPM("", 0, 0, &stubRunner{pages: 2}), &stubEngine{}, nil)

	result, err := extractor.ExtractPDF(context.Background(), "label.pdf")
	require.NoError(t, err)
	assert.Equal(t, "text of image-1\n\f\ntext of image-2", result.Text)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, "stub", result.Engine)
	assert.Empty(t, result.Warnings)
}

func TestExtractor_PageFailuresBecomeWarnings(t *testing.T) {
	engine := &stubEngine{failOn: map[string]bool{"image-1": true}}
	extractor := NewExtractorWith(NewPDFToPPM("", 0, 0, &stubRunner{pages: 2}), engine, nil)

	result, err := extractor.ExtractPDF(context.Background(), "label.pdf")
	require.NoError(t, err)
	assert.Equal(t, "text of image-2", result.Text)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "page 1")
}

func TestExtractor_AllPagesFail(t *testing.T) {
	engine := &stubEngine{failOn: map[string]bool{"image-1": true}}
	extractor := NewExtractorWith(NewPDFToPPM("", 0, 0, &stubRunner{pages: 1}), engine, nil)

	_, err := extractor.ExtractPDF(context.Background(), "label.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no readable pages")
}

func TestExtractor_CanceledContext(t *testing.T) {
	extractor := NewExtractorWith(NewPDFToPPM("", 0, 0, &stubRunner{pages: 2}), &stubEngine{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := extractor.ExtractPDF(ctx, "label.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}
