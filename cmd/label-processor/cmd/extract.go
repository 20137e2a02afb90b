package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"label-processor/internal/cli"
	"label-processor/internal/ocr"
	"label-processor/internal/parser"
)

type extractOptions struct {
	textFile  string
	filename  string
	serverURL string
	strict    bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Recognize the order and tracking numbers of one label",
		Long: `Runs recognition on a single document. A .pdf argument goes through OCR
first; any other file, --text-file, or stdin is treated as OCR text.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.textFile, "text-file", "", "read OCR text from a file (- for stdin)")
	cmd.Flags().StringVar(&opts.filename, "filename", "", "file name used for the tracking-number fallback")
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "send the text to a running label-processor server")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when an identifier is missing")
	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions, args []string) error {
	cfg, err := root.loadConfiguration()
	if err != nil {
		return err
	}
	logger := root.newLogger(cmd, cfg)
	formatter := root.formatter(cmd)

	var source string
	switch {
	case opts.textFile != "":
		source = opts.textFile
	case len(args) == 1:
		source = args[0]
	default:
		source = "-"
	}

	filename := opts.filename
	if filename == "" && source != "-" {
		filename = filepath.Base(source)
	}

	var text string
	if opts.textFile == "" && strings.EqualFold(filepath.Ext(source), ".pdf") {
		extractor := ocr.NewExtractor(ocrConfig(cfg), logger)
		result, err := extractor.ExtractPDF(cmd.Context(), source)
		if err != nil {
			formatter.PrintError(err)
			return &parser.UpstreamError{Stage: "ocr", Err: err}
		}
		for _, w := range result.Warnings {
			formatter.PrintWarning(w)
		}
		logger.Debug("ocr complete", "pages", result.Pages, "duration", result.Duration.Round(time.Millisecond))
		text = result.Text
	} else {
		text, err = readText(cmd.InOrStdin(), source)
		if err != nil {
			return err
		}
	}

	var report *parser.Report
	if opts.serverURL != "" {
		report, err = cli.NewClient(opts.serverURL).Extract(cmd.Context(), text, filename)
		if err != nil {
			formatter.PrintError(err)
			return err
		}
	} else {
		report = parser.Extract(text, filename)
	}

	if err := formatter.PrintReport(report); err != nil {
		return err
	}
	if opts.strict {
		return report.Err()
	}
	return nil
}

func readText(stdin io.Reader, source string) (string, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", source, err)
	}
	return string(data), nil
}
