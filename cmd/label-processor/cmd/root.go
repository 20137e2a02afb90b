// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"label-processor/internal/cli"
	"label-processor/internal/config"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	envFile    string
	format     string
	quiet      bool
	noColor    bool
	logLevel   string
}

// Execute builds the command tree and runs it through fang. SIGINT and
// SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fang.Execute(ctx, newRootCmd())
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "label-processor",
		Short: "Extract order and tracking numbers from shipping label PDFs",
		Long: `Label Processor v` + Version + `

Reads scanned shipping labels, recognizes the order number and the carrier
tracking number, and marks the matching order as shipped.

CONFIGURATION:
    Settings come from defaults, an optional label-processor.{yaml,toml,json}
    (searched in ., ./config and $HOME/.label-processor, or --config), and
    LABEL_PROCESSOR_* environment variables, in increasing precedence.

    LABEL_PROCESSOR_PROCESSING_INPUT_DIR      - Directory of label PDFs (default: ./labels)
    LABEL_PROCESSOR_PROCESSING_STATE_DB_PATH  - SQLite ledger (default: ./label-processor.db)
    LABEL_PROCESSOR_PROCESSING_WORKERS        - Parallel documents (default: 4)
    LABEL_PROCESSOR_FULFILLMENT_URL           - Order service base URL (empty disables fulfillment)
    LABEL_PROCESSOR_FULFILLMENT_API_KEY       - Order service API key
    LABEL_PROCESSOR_FULFILLMENT_API_SECRET    - Order service API secret
    LABEL_PROCESSOR_OCR_LANGUAGES             - Tesseract languages, e.g. eng+deu
    LABEL_PROCESSOR_LOGGING_LEVEL             - debug, info, warn or error

EXAMPLES:
    label-processor extract label.pdf
    label-processor extract --text-file scan.txt --filename 9205590164917312345671.pdf
    label-processor process ./labels --dry-run --export report.xlsx
    label-processor serve`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.ValidateFormat(opts.format)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is label-processor.yaml in . or ./config)")
	flags.StringVar(&opts.envFile, "env-file", "", "load environment variables from a .env file")
	flags.StringVarP(&opts.format, "format", "f", getEnvOrDefault(config.EnvPrefix+"_FORMAT", cli.FormatTable), "Output format (table, json)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable color output")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		newExtractCmd(opts),
		newProcessCmd(opts),
		newServeCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
		newPatternsCmd(opts),
	)

	return rootCmd
}

// loadConfiguration loads configuration from files and environment variables
func (o *rootOptions) loadConfiguration() (*config.Config, error) {
	if o.envFile != "" {
		if err := config.ValidateConfigFilePath(o.envFile); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := config.LoadEnvFile(o.envFile); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadWithFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if o.logLevel != "" {
		if _, err := config.ParseLevel(o.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// newLogger writes logs to stderr so command output stays parseable.
func (o *rootOptions) newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	logger.Debug("configuration loaded", "version", Version, "build_date", BuildDate)
	if configJSON, err := cfg.ToJSON(); err == nil {
		logger.Debug("configuration details", "config", configJSON)
	}
	return logger
}

func (o *rootOptions) formatter(cmd *cobra.Command) *cli.OutputFormatter {
	out := cmd.OutOrStdout()
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = cli.UseColor(f, o.noColor)
	}
	return cli.NewOutputFormatterTo(out, cmd.ErrOrStderr(), o.format, o.quiet, useColor)
}

func (o *rootOptions) spinner(cmd *cobra.Command, message string) *cli.ProgressSpinner {
	if o.quiet || o.format == cli.FormatJSON {
		return cli.NewProgressSpinnerTo(cmd.ErrOrStderr(), message, false)
	}
	if f, ok := cmd.ErrOrStderr().(*os.File); ok {
		return cli.NewProgressSpinnerTo(f, message, cli.UseColor(f, o.noColor) && os.Getenv("CI") == "")
	}
	return cli.NewProgressSpinnerTo(cmd.ErrOrStderr(), message, false)
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(envVar, defaultVal string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultVal
}
