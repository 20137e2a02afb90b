package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the processor reads.
const EnvPrefix = "LABEL_PROCESSOR"

// LoadWithViper loads configuration from defaults, an optional config file
// and LABEL_PROCESSOR_* environment variables, in increasing precedence.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Set up environment variable binding
	setupEnvBinding(v)

	// Load configuration file if specified
	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Load loads configuration using a fresh Viper instance
func Load() (*Config, error) {
	return LoadWithViper(viper.New())
}

// LoadWithFile loads configuration from a specific file
func LoadWithFile(configFile string) (*Config, error) {
	if err := ValidateConfigFilePath(configFile); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadWithViper(v)
}

func setDefaults(v *viper.Viper) {
	// OCR defaults
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.languages", "eng")
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.psm", 0)

	// Fulfillment defaults
	v.SetDefault("fulfillment.url", "")
	v.SetDefault("fulfillment.timeout", "30s")
	v.SetDefault("fulfillment.retry_count", 3)
	v.SetDefault("fulfillment.retry_delay", "1s")
	v.SetDefault("fulfillment.backoff_factor", 2.0)
	v.SetDefault("fulfillment.user_agent", "label-processor/1.0")
	v.SetDefault("fulfillment.notify_customer", false)

	// Processing defaults
	v.SetDefault("processing.input_dir", "./labels")
	v.SetDefault("processing.workers", 4)
	v.SetDefault("processing.dry_run", false)
	v.SetDefault("processing.reprocess", false)
	v.SetDefault("processing.state_db_path", "./label-processor.db")
	v.SetDefault("processing.document_timeout", "2m")
	v.SetDefault("processing.watch_interval", "1m")
	v.SetDefault("processing.retention_days", 90)

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("export.path", "./label-report.xlsx")
}

// configKeys lists every key; each binds to LABEL_PROCESSOR_<SECTION>_<KEY>.
var configKeys = []string{
	"ocr.pdftoppm",
	"ocr.dpi",
	"ocr.languages",
	"ocr.max_pages",
	"ocr.tessdata_dir",
	"ocr.psm",

	"fulfillment.url",
	"fulfillment.api_key",
	"fulfillment.api_secret",
	"fulfillment.timeout",
	"fulfillment.retry_count",
	"fulfillment.retry_delay",
	"fulfillment.backoff_factor",
	"fulfillment.user_agent",
	"fulfillment.assignee_user_id",
	"fulfillment.notify_customer",

	"processing.input_dir",
	"processing.workers",
	"processing.dry_run",
	"processing.reprocess",
	"processing.state_db_path",
	"processing.document_timeout",
	"processing.watch_interval",
	"processing.retention_days",

	"server.host",
	"server.port",

	"logging.level",
	"logging.format",

	"export.path",
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range configKeys {
		envVar := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envVar)
	}

	// conventional names used by deployment tooling
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("ocr.tessdata_dir", EnvPrefix+"_OCR_TESSDATA_DIR", "TESSDATA_PREFIX")
}

func loadConfigFile(v *viper.Viper) error {
	// Check if a specific config file was set
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.label-processor")
		v.SetConfigName("label-processor")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, only return error if it's not a "not found" error
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}

	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	var err error

	// OCR configuration
	config.OCR.Pdftoppm = v.GetString("ocr.pdftoppm")
	config.OCR.DPI = v.GetInt("ocr.dpi")
	config.OCR.Languages = parseStringSlice(v.GetString("ocr.languages"), "+")
	config.OCR.MaxPages = v.GetInt("ocr.max_pages")
	config.OCR.TessdataDir = v.GetString("ocr.tessdata_dir")
	config.OCR.PSM = v.GetInt("ocr.psm")

	// Fulfillment configuration
	config.Fulfillment.URL = strings.TrimSuffix(v.GetString("fulfillment.url"), "/")
	config.Fulfillment.APIKey = v.GetString("fulfillment.api_key")
	config.Fulfillment.APISecret = v.GetString("fulfillment.api_secret")
	config.Fulfillment.Timeout, err = time.ParseDuration(v.GetString("fulfillment.timeout"))
	if err != nil {
		return fmt.Errorf("invalid fulfillment timeout: %w", err)
	}
	config.Fulfillment.RetryCount = v.GetInt("fulfillment.retry_count")
	config.Fulfillment.RetryDelay, err = time.ParseDuration(v.GetString("fulfillment.retry_delay"))
	if err != nil {
		return fmt.Errorf("invalid fulfillment retry delay: %w", err)
	}
	config.Fulfillment.BackoffFactor = v.GetFloat64("fulfillment.backoff_factor")
	config.Fulfillment.UserAgent = v.GetString("fulfillment.user_agent")
	config.Fulfillment.AssigneeUserID = v.GetString("fulfillment.assignee_user_id")
	config.Fulfillment.NotifyCustomer = v.GetBool("fulfillment.notify_customer")

	// Processing configuration
	config.Processing.InputDir = v.GetString("processing.input_dir")
	config.Processing.Workers = v.GetInt("processing.workers")
	config.Processing.DryRun = v.GetBool("processing.dry_run")
	config.Processing.Reprocess = v.GetBool("processing.reprocess")
	config.Processing.StateDBPath = v.GetString("processing.state_db_path")
	config.Processing.DocumentTimeout, err = time.ParseDuration(v.GetString("processing.document_timeout"))
	if err != nil {
		return fmt.Errorf("invalid document timeout: %w", err)
	}
	config.Processing.WatchInterval, err = time.ParseDuration(v.GetString("processing.watch_interval"))
	if err != nil {
		return fmt.Errorf("invalid watch interval: %w", err)
	}
	config.Processing.RetentionDays = v.GetInt("processing.retention_days")

	// Server configuration
	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetString("server.port")

	// Logging configuration
	config.Logging.Level = strings.ToLower(v.GetString("logging.level"))
	config.Logging.Format = strings.ToLower(v.GetString("logging.format"))

	config.Export.Path = v.GetString("export.path")

	return nil
}

// parseStringSlice splits on sep and on commas, dropping blanks. Tesseract
// writes language lists as "eng+deu".
func parseStringSlice(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(sep+",", r)
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
