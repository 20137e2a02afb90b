package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithViper_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadWithViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "pdftoppm", cfg.OCR.Pdftoppm)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, []string{"eng"}, cfg.OCR.Languages)
	assert.False(t, cfg.Fulfillment.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Fulfillment.Timeout)
	assert.Equal(t, 3, cfg.Fulfillment.RetryCount)
	assert.Equal(t, 4, cfg.Processing.Workers)
	assert.Equal(t, "./label-processor.db", cfg.Processing.StateDBPath)
	assert.Equal(t, 2*time.Minute, cfg.Processing.DocumentTimeout)
	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadWithViper_Environment(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("LABEL_PROCESSOR_OCR_DPI", "200")
	t.Setenv("LABEL_PROCESSOR_OCR_LANGUAGES", "eng+deu")
	t.Setenv("LABEL_PROCESSOR_FULFILLMENT_URL", "https://orders.example.com/")
	t.Setenv("LABEL_PROCESSOR_FULFILLMENT_API_KEY", "key-123456789")
	t.Setenv("LABEL_PROCESSOR_FULFILLMENT_API_SECRET", "secret-123456789")
	t.Setenv("LABEL_PROCESSOR_FULFILLMENT_RETRY_DELAY", "250ms")
	t.Setenv("LABEL_PROCESSOR_PROCESSING_WORKERS", "8")
	t.Setenv("LABEL_PROCESSOR_PROCESSING_DRY_RUN", "true")
	t.Setenv("LABEL_PROCESSOR_LOGGING_LEVEL", "DEBUG")
	t.Setenv("PORT", "9090")

	cfg, err := LoadWithViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.OCR.DPI)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCR.Languages)
	assert.True(t, cfg.Fulfillment.Enabled())
	assert.Equal(t, "https://orders.example.com", cfg.Fulfillment.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Fulfillment.RetryDelay)
	assert.Equal(t, 8, cfg.Processing.Workers)
	assert.True(t, cfg.Processing.DryRun)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := `
ocr:
  dpi: 150
  max_pages: 2
fulfillment:
  url: http://orders.local
  assignee_user_id: user-1
processing:
  workers: 2
  input_dir: ./incoming
logging:
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(content), 0o644))

	cfg, err := LoadWithFile("custom.yaml")
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.OCR.DPI)
	assert.Equal(t, 2, cfg.OCR.MaxPages)
	assert.Equal(t, "http://orders.local", cfg.Fulfillment.URL)
	assert.Equal(t, "user-1", cfg.Fulfillment.AssigneeUserID)
	assert.Equal(t, 2, cfg.Processing.Workers)
	assert.Equal(t, "./incoming", cfg.Processing.InputDir)
	assert.Equal(t, "json", cfg.Logging.Format)

	_, err = LoadWithFile("../escape.yaml")
	assert.Error(t, err)
}

func TestLoadWithViper_DiscoversConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "label-processor.yaml"), []byte("server:\n  port: \"7070\"\n"), 0o644))

	cfg, err := LoadWithViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestLoadWithViper_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"dpi too low", map[string]string{"LABEL_PROCESSOR_OCR_DPI": "10"}, "dpi"},
		{"bad url", map[string]string{"LABEL_PROCESSOR_FULFILLMENT_URL": "orders.local"}, "fulfillment url"},
		{"key without secret", map[string]string{
			"LABEL_PROCESSOR_FULFILLMENT_URL":     "http://orders.local",
			"LABEL_PROCESSOR_FULFILLMENT_API_KEY": "key",
		}, "api_secret"},
		{"zero workers", map[string]string{"LABEL_PROCESSOR_PROCESSING_WORKERS": "0"}, "workers"},
		{"bad duration", map[string]string{"LABEL_PROCESSOR_FULFILLMENT_TIMEOUT": "soon"}, "timeout"},
		{"bad level", map[string]string{"LABEL_PROCESSOR_LOGGING_LEVEL": "loud"}, "log level"},
		{"bad format", map[string]string{"LABEL_PROCESSOR_LOGGING_FORMAT": "xml"}, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadWithViper(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ToJSONRedactsSecrets(t *testing.T) {
	cfg := &Config{Fulfillment: FulfillmentConfig{APIKey: "abcd1234efgh", APISecret: "short"}}

	out, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, out, "abcd***efgh")
	assert.NotContains(t, out, "abcd1234efgh")
	assert.NotContains(t, out, "short")
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "file", "a.pdf")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"file":"a.pdf"`)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nLP_TEST_A=one\nexport LP_TEST_B=\"two\"\nLP_TEST_C='three'\ninvalid line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("LP_TEST_C", "preset")
	t.Cleanup(func() {
		os.Unsetenv("LP_TEST_A")
		os.Unsetenv("LP_TEST_B")
	})

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "one", os.Getenv("LP_TEST_A"))
	assert.Equal(t, "two", os.Getenv("LP_TEST_B"))
	assert.Equal(t, "preset", os.Getenv("LP_TEST_C"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidateConfigFilePath(t *testing.T) {
	tests := []struct {
		filename  string
		expectErr bool
	}{
		{"", false},
		{"config.yaml", false},
		{"configs/prod.yaml", false},
		{".env.test", false},
		{"../../../etc/passwd", true},
		{"../config/app.yaml", true},
		{"configs/../../x.yaml", true},
		{"file..yaml", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			err := ValidateConfigFilePath(tt.filename)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
