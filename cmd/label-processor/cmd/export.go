package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"label-processor/internal/database"
	"label-processor/internal/export"
)

type exportOptions struct {
	runID    string
	failures bool
	limit    int
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Write ledger documents to an XLSX report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.runID, "run", "", "only documents from this run id")
	cmd.Flags().BoolVar(&opts.failures, "failures", false, "only failed and errored documents")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 1000, "maximum documents to export")
	return cmd
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions, args []string) error {
	cfg, err := root.loadConfiguration()
	if err != nil {
		return err
	}
	logger := root.newLogger(cmd, cfg)
	formatter := root.formatter(cmd)

	path := cfg.Export.Path
	if len(args) == 1 {
		path = args[0]
	}

	db, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var docs []database.Document
	switch {
	case opts.runID != "":
		docs, err = db.Documents.ByRun(opts.runID)
	case opts.failures:
		docs, err = db.Documents.Failures(opts.limit)
	default:
		docs, err = db.Documents.Recent(opts.limit)
	}
	if err != nil {
		return err
	}

	if err := export.WriteXLSX(docs, path, logger); err != nil {
		formatter.PrintError(err)
		return err
	}
	formatter.PrintSuccess(fmt.Sprintf("Wrote %d documents to %s", len(docs), path))
	return nil
}
