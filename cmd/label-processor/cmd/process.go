package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"label-processor/internal/cli"
	"label-processor/internal/config"
	"label-processor/internal/database"
	"label-processor/internal/export"
	"label-processor/internal/metrics"
	"label-processor/internal/workers"
)

type processOptions struct {
	dryRun     bool
	reprocess  bool
	workers    int
	watch      bool
	interval   time.Duration
	exportPath string
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process [dir]",
		Short: "Process every label PDF in a directory",
		Long: `Runs OCR and recognition over each *.pdf under the directory (default
processing.input_dir), marks complete labels as shipped in the order service,
and records every document in the ledger. Documents already handled are
skipped unless --reprocess is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, root, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "extract only, don't mark orders shipped")
	cmd.Flags().BoolVar(&opts.reprocess, "reprocess", false, "process documents already in the ledger")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "documents processed in parallel (default processing.workers)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "keep running and rescan the directory on an interval")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "rescan interval with --watch (default processing.watch_interval)")
	cmd.Flags().StringVar(&opts.exportPath, "export", "", "write this run's documents to an XLSX report")
	return cmd
}

func (o *processOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("dry-run") {
		cfg.Processing.DryRun = o.dryRun
	}
	if cmd.Flags().Changed("reprocess") {
		cfg.Processing.Reprocess = o.reprocess
	}
	if o.workers > 0 {
		cfg.Processing.Workers = o.workers
	}
	if o.interval > 0 {
		cfg.Processing.WatchInterval = o.interval
	}
}

func runProcess(cmd *cobra.Command, root *rootOptions, opts *processOptions, args []string) error {
	cfg, err := root.loadConfiguration()
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)

	dir := cfg.Processing.InputDir
	if len(args) == 1 {
		dir = args[0]
	}

	logger := root.newLogger(cmd, cfg)
	formatter := root.formatter(cmd)

	db, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	pruneLedger(db, cfg, logger)

	if !cfg.Processing.DryRun && !cfg.Fulfillment.Enabled() {
		formatter.PrintWarning("fulfillment.url is not set; labels will be extracted but not marked shipped")
	}

	processor := newProcessor(cfg, db, metrics.New(), logger)

	if opts.watch {
		formatter.PrintInfo(fmt.Sprintf("Watching %s every %s", dir, cfg.Processing.WatchInterval))
		return processor.Watch(cmd.Context(), dir, cfg.Processing.WatchInterval, func(summary *workers.RunSummary) {
			if summary.Total == summary.Skipped {
				return
			}
			if err := formatter.PrintRunSummary(summary); err != nil {
				logger.Warn("failed to print run summary", "error", err)
			}
			exportRun(db, summary, opts.exportPath, logger, formatter)
		})
	}

	spinner := root.spinner(cmd, "Processing labels in "+dir)
	spinner.Start()
	summary, err := processor.ProcessDirectory(cmd.Context(), dir)
	spinner.Stop()

	if summary != nil {
		if printErr := formatter.PrintRunSummary(summary); printErr != nil {
			return printErr
		}
		exportRun(db, summary, opts.exportPath, logger, formatter)
	}
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return nil
}

func exportRun(db *database.DB, summary *workers.RunSummary, path string, logger *slog.Logger, formatter *cli.OutputFormatter) {
	if path == "" {
		return
	}
	docs, err := db.Documents.ByRun(summary.RunID)
	if err != nil {
		formatter.PrintError(fmt.Errorf("export: %w", err))
		return
	}
	if err := export.WriteXLSX(docs, path, logger); err != nil {
		formatter.PrintError(err)
		return
	}
	formatter.PrintSuccess(fmt.Sprintf("Wrote %d documents to %s", len(docs), path))
}
