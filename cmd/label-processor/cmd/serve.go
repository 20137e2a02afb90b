package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"label-processor/internal/metrics"
	"label-processor/internal/server"
	"label-processor/internal/workers"
)

type serveOptions struct {
	host            string
	port            string
	watch           bool
	shutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction API, ledger queries and metrics",
		Long: `Starts the HTTP API:

    POST /api/extract          recognize identifiers in posted OCR text
    GET  /api/documents        ledger entries (?limit=, ?status=failed)
    GET  /api/documents/stats  ledger summary
    GET  /api/patterns         recognition cascades
    GET  /api/health           liveness and ledger health
    GET  /metrics              Prometheus metrics

With --watch the server also processes processing.input_dir on
processing.watch_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (default server.host)")
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "listen port (default server.port)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "also process the input directory on an interval")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	cfg, err := root.loadConfiguration()
	if err != nil {
		return err
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != "" {
		cfg.Server.Port = opts.port
	}

	logger := root.newLogger(cmd, cfg)

	db, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	pruneLedger(db, cfg, logger)

	m := metrics.New()
	handlers := server.NewHandlers(db.Documents, db, m, logger)

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: server.NewRouter(handlers, m, logger),

		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return server.Serve(gctx, srv, nil, opts.shutdownTimeout, logger)
	})

	if opts.watch {
		processor := newProcessor(cfg, db, m, logger)
		g.Go(func() error {
			return processor.Watch(gctx, cfg.Processing.InputDir, cfg.Processing.WatchInterval, func(s *workers.RunSummary) {
				if s.Total > s.Skipped {
					logger.Info("watch run finished", "run_id", s.RunID, "fulfilled", s.Fulfilled, "failed", s.Failed, "errors", s.Errors)
				}
			})
		})
	}

	return g.Wait()
}
