package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"label-processor/internal/database"
	"label-processor/internal/parser"
	"label-processor/internal/workers"
)

// Supported output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// ValidateFormat rejects unknown output formats.
func ValidateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (must be one of: table, json)", format)
	}
}

// UseColor reports whether styled output should be written to f.
func UseColor(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(useColor bool) styles {
	if !useColor {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format string
	quiet  bool
	out    io.Writer
	errOut io.Writer
	styles styles
}

// NewOutputFormatter creates a formatter on stdout/stderr. Color is used only
// when stdout is a terminal and noColor is unset.
func NewOutputFormatter(format string, quiet, noColor bool) *OutputFormatter {
	return NewOutputFormatterTo(os.Stdout, os.Stderr, format, quiet, UseColor(os.Stdout, noColor))
}

// NewOutputFormatterTo creates a formatter on the given writers.
func NewOutputFormatterTo(out, errOut io.Writer, format string, quiet, useColor bool) *OutputFormatter {
	return &OutputFormatter{
		format: format,
		quiet:  quiet,
		out:    out,
		errOut: errOut,
		styles: newStyles(useColor),
	}
}

func (f *OutputFormatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintReport prints the identifiers recognized in one document.
func (f *OutputFormatter) PrintReport(report *parser.Report) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%s\t%s\n", report.OrderNumber(), report.TrackingNumber())
		return nil
	}

	switch f.format {
	case FormatJSON:
		return f.writeJSON(report)
	case FormatTable:
		fmt.Fprintln(f.out, f.styles.header.Render(report.Filename))
		f.printResult("Order number", report.Order)
		f.printResult("Tracking number", report.Tracking)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

func (f *OutputFormatter) printResult(label string, r parser.Result) {
	if r.Found {
		detail := r.Pattern
		if r.Source != "" && r.Source != r.Pattern {
			detail = r.Source + ", " + r.Pattern
		}
		fmt.Fprintf(f.out, "  %s %s: %s %s\n",
			f.styles.success.Render("✓"), label, r.Value, f.styles.muted.Render("("+detail+")"))
		return
	}
	fmt.Fprintf(f.out, "  %s %s: not found %s\n",
		f.styles.failure.Render("✗"), label,
		f.styles.muted.Render(fmt.Sprintf("(tried %s)", strings.Join(r.Diagnostics.PatternsTried(), ", "))))
}

// PrintRunSummary prints the outcome of a batch run.
func (f *OutputFormatter) PrintRunSummary(summary *workers.RunSummary) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d %d %d %d %d\n",
			summary.Fulfilled, summary.Extracted, summary.Failed, summary.Skipped, summary.Errors)
		return nil
	}

	switch f.format {
	case FormatJSON:
		return f.writeJSON(summary)
	case FormatTable:
		return f.printRunSummaryTable(summary)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

func (f *OutputFormatter) printRunSummaryTable(summary *workers.RunSummary) error {
	if len(summary.Results) > 0 {
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSTATUS\tORDER\tTRACKING\tDETAIL")
		for _, r := range summary.Results {
			var order, tracking string
			if r.Report != nil {
				order = r.Report.OrderNumber()
				tracking = r.Report.TrackingNumber()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncate(r.Filename, 32),
				r.Status,
				dash(order),
				dash(tracking),
				truncate(r.Error, 40))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(f.out)
	}

	fmt.Fprintf(f.out, "%s %s\n", f.styles.header.Render("Run"), summary.RunID)
	fmt.Fprintf(f.out, "  %d documents in %s\n", summary.Total, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(f.out, "  %s fulfilled  %s extracted  %s failed  %s skipped  %s errors\n",
		f.styles.success.Render(fmt.Sprint(summary.Fulfilled)),
		f.styles.info.Render(fmt.Sprint(summary.Extracted)),
		f.styles.warning.Render(fmt.Sprint(summary.Failed)),
		f.styles.muted.Render(fmt.Sprint(summary.Skipped)),
		f.styles.failure.Render(fmt.Sprint(summary.Errors)))
	return nil
}

// PrintDocuments prints ledger entries.
func (f *OutputFormatter) PrintDocuments(docs []database.Document) error {
	if f.quiet {
		for _, doc := range docs {
			fmt.Fprintln(f.out, doc.Path)
		}
		return nil
	}

	switch f.format {
	case FormatJSON:
		if docs == nil {
			docs = []database.Document{}
		}
		return f.writeJSON(docs)
	case FormatTable:
		if len(docs) == 0 {
			fmt.Fprintln(f.out, "No documents found.")
			return nil
		}
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROCESSED\tFILE\tSTATUS\tORDER\tTRACKING\tMISSING")
		for _, doc := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				doc.ProcessedAt.Local().Format("2006-01-02 15:04"),
				truncate(doc.Filename, 32),
				doc.Status,
				dash(doc.OrderNumber),
				dash(doc.TrackingNumber),
				dash(strings.Join(doc.Missing, ",")))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintStats prints the ledger summary.
func (f *OutputFormatter) PrintStats(stats *database.DocumentStats) error {
	if f.quiet {
		fmt.Fprintln(f.out, stats.Total)
		return nil
	}

	switch f.format {
	case FormatJSON:
		return f.writeJSON(stats)
	case FormatTable:
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Total\t%d\n", stats.Total)
		fmt.Fprintf(w, "Fulfilled\t%d\n", stats.Fulfilled)
		fmt.Fprintf(w, "Extracted\t%d\n", stats.Extracted)
		fmt.Fprintf(w, "Failed\t%d\n", stats.Failed)
		fmt.Fprintf(w, "Skipped\t%d\n", stats.Skipped)
		fmt.Fprintf(w, "Errors\t%d\n", stats.Errors)
		if stats.LastProcessed != nil {
			fmt.Fprintf(w, "Last processed\t%s\n", stats.LastProcessed.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintPatterns prints the recognition cascades.
func (f *OutputFormatter) PrintPatterns(rows []parser.PatternInfo) error {
	if f.quiet {
		for _, r := range rows {
			fmt.Fprintln(f.out, r.Name)
		}
		return nil
	}

	switch f.format {
	case FormatJSON:
		return f.writeJSON(rows)
	case FormatTable:
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\t#\tNAME\tDESCRIPTION")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Kind, r.Priority, r.Name, r.Description)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "%s %s\n", f.styles.success.Render("✓"), message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(f.errOut, "%s Error: %v\n", f.styles.failure.Render("✗"), err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "%s %s\n", f.styles.info.Render("ℹ"), message)
	}
}

// PrintWarning prints a warning to stderr
func (f *OutputFormatter) PrintWarning(message string) {
	if !f.quiet {
		fmt.Fprintf(f.errOut, "%s %s\n", f.styles.warning.Render("!"), message)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
