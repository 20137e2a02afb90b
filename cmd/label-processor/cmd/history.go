package cmd

import (
	"github.com/spf13/cobra"

	"label-processor/internal/cli"
	"label-processor/internal/database"
)

type historyOptions struct {
	failures  bool
	limit     int
	stats     bool
	serverURL string
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List documents recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.failures, "failures", false, "only failed and errored documents")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "maximum documents to list")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "show counts by status instead of documents")
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "query a running label-processor server instead of the local ledger")
	return cmd
}

func runHistory(cmd *cobra.Command, root *rootOptions, opts *historyOptions) error {
	formatter := root.formatter(cmd)

	if opts.serverURL != "" {
		client := cli.NewClient(opts.serverURL)
		if opts.stats {
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				formatter.PrintError(err)
				return err
			}
			return formatter.PrintStats(stats)
		}
		docs, err := client.Documents(cmd.Context(), opts.limit, opts.failures)
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		return formatter.PrintDocuments(docs)
	}

	cfg, err := root.loadConfiguration()
	if err != nil {
		return err
	}
	logger := root.newLogger(cmd, cfg)

	db, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.stats {
		stats, err := db.Documents.Stats()
		if err != nil {
			return err
		}
		return formatter.PrintStats(stats)
	}

	var docs []database.Document
	if opts.failures {
		docs, err = db.Documents.Failures(opts.limit)
	} else {
		docs, err = db.Documents.Recent(opts.limit)
	}
	if err != nil {
		return err
	}
	return formatter.PrintDocuments(docs)
}
