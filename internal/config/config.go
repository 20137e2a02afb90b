package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Config holds all configuration for the label processor
type Config struct {
	OCR         OCRConfig         `json:"ocr"`
	Fulfillment FulfillmentConfig `json:"fulfillment"`
	Processing  ProcessingConfig  `json:"processing"`
	Server      ServerConfig      `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	Export      ExportConfig      `json:"export"`
}

// OCRConfig configures rasterization and text recognition
type OCRConfig struct {
	Pdftoppm    string   `json:"pdftoppm"`
	DPI         int      `json:"dpi"`
	Languages   []string `json:"languages"`
	MaxPages    int      `json:"max_pages"`
	TessdataDir string   `json:"tessdata_dir"`
	PSM         int      `json:"psm"`
}

// FulfillmentConfig configures the order service client
type FulfillmentConfig struct {
	URL            string        `json:"url"`
	APIKey         string        `json:"api_key"`
	APISecret      string        `json:"api_secret"`
	Timeout        time.Duration `json:"timeout"`
	RetryCount     int           `json:"retry_count"`
	RetryDelay     time.Duration `json:"retry_delay"`
	BackoffFactor  float64       `json:"backoff_factor"`
	UserAgent      string        `json:"user_agent"`
	AssigneeUserID string        `json:"assignee_user_id"`
	NotifyCustomer bool          `json:"notify_customer"`
}

// Enabled reports whether an order service is configured.
func (f FulfillmentConfig) Enabled() bool {
	return f.URL != ""
}

// ProcessingConfig configures batch runs
type ProcessingConfig struct {
	InputDir        string        `json:"input_dir"`
	Workers         int           `json:"workers"`
	DryRun          bool          `json:"dry_run"`
	Reprocess       bool          `json:"reprocess"`
	StateDBPath     string        `json:"state_db_path"`
	DocumentTimeout time.Duration `json:"document_timeout"`
	WatchInterval   time.Duration `json:"watch_interval"`
	RetentionDays   int           `json:"retention_days"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// LoggingConfig configures slog output
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ExportConfig configures report export
type ExportConfig struct {
	Path string `json:"path"`
}

// Address returns the server listen address
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.OCR.DPI < 72 || c.OCR.DPI > 1200 {
		return fmt.Errorf("ocr dpi must be between 72 and 1200")
	}
	if c.OCR.MaxPages < 0 {
		return fmt.Errorf("ocr max_pages must be non-negative")
	}
	if len(c.OCR.Languages) == 0 {
		return fmt.Errorf("at least one ocr language is required")
	}

	if c.Fulfillment.Enabled() {
		u, err := url.Parse(c.Fulfillment.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid fulfillment url: %q", c.Fulfillment.URL)
		}
		if c.Fulfillment.APIKey != "" && c.Fulfillment.APISecret == "" {
			return fmt.Errorf("fulfillment api_secret is required when api_key is set")
		}
	}
	if c.Fulfillment.RetryCount < 0 || c.Fulfillment.RetryCount > 10 {
		return fmt.Errorf("fulfillment retry_count must be between 0 and 10")
	}

	if c.Processing.Workers < 1 || c.Processing.Workers > 64 {
		return fmt.Errorf("processing workers must be between 1 and 64")
	}
	if c.Processing.StateDBPath == "" {
		return fmt.Errorf("state_db_path cannot be empty")
	}
	if c.Processing.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be non-negative")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// NewLogger builds the process logger from the logging section.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ToJSON serializes the configuration to JSON (for debugging)
func (c *Config) ToJSON() (string, error) {
	// Create a copy with sensitive fields redacted
	safe := *c
	safe.Fulfillment.APIKey = redact(safe.Fulfillment.APIKey)
	safe.Fulfillment.APISecret = redact(safe.Fulfillment.APISecret)

	data, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}
