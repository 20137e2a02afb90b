package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"label-processor/internal/api"
	"label-processor/internal/config"
	"label-processor/internal/database"
	"label-processor/internal/metrics"
	"label-processor/internal/ocr"
	"label-processor/internal/workers"
)

func ocrConfig(cfg *config.Config) ocr.Config {
	return ocr.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		Languages:   cfg.OCR.Languages,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
	}
}

func openLedger(cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.Open(cfg.Processing.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	logger.Debug("ledger opened", "path", cfg.Processing.StateDBPath)
	return db, nil
}

// pruneLedger drops entries older than the retention window. Zero keeps
// everything.
func pruneLedger(db *database.DB, cfg *config.Config, logger *slog.Logger) {
	if cfg.Processing.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Processing.RetentionDays)
	removed, err := db.Documents.Cleanup(cutoff)
	if err != nil {
		logger.Warn("ledger cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("pruned ledger", "removed", removed, "older_than", cutoff.Format(time.DateOnly))
	}
}

// newFulfiller returns nil when fulfillment is disabled so the processor
// records extractions without calling out.
func newFulfiller(cfg *config.Config, dryRun bool, logger *slog.Logger) workers.Fulfiller {
	if dryRun || !cfg.Fulfillment.Enabled() {
		return nil
	}
	f := cfg.Fulfillment
	return api.NewClient(&api.ClientConfig{
		BaseURL:        f.URL,
		APIKey:         f.APIKey,
		APISecret:      f.APISecret,
		Timeout:        f.Timeout,
		RetryCount:     f.RetryCount,
		RetryDelay:     f.RetryDelay,
		BackoffFactor:  f.BackoffFactor,
		UserAgent:      f.UserAgent,
		AssigneeUserID: f.AssigneeUserID,
		NotifyCustomer: f.NotifyCustomer,
	}, logger)
}

func newProcessor(cfg *config.Config, db *database.DB, m *metrics.Metrics, logger *slog.Logger) *workers.LabelProcessor {
	return workers.NewLabelProcessor(
		workers.LabelProcessorConfig{
			Workers:         cfg.Processing.Workers,
			DryRun:          cfg.Processing.DryRun,
			Reprocess:       cfg.Processing.Reprocess,
			DocumentTimeout: cfg.Processing.DocumentTimeout,
		},
		ocr.NewExtractor(ocrConfig(cfg), logger),
		db.Documents,
		newFulfiller(cfg, cfg.Processing.DryRun, logger),
		m,
		logger,
	)
}
