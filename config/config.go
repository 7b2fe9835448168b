// Package config loads service configuration from an optional YAML file
// with environment-variable overrides. All durations are milliseconds in
// config form.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// SavePDFFiles enables best-effort local persistence of captured
	// buffers under SaveDir.
	SavePDFFiles bool   `yaml:"save_pdf_files"`
	SaveDir      string `yaml:"save_dir"`

	// CaptureLogDB is the SQLite path for the capture audit log.
	// Empty disables the log.
	CaptureLogDB string `yaml:"capture_log_db"`

	Browser BrowserConfig `yaml:"browser"`
	Capture CaptureConfig `yaml:"capture"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL string `yaml:"remote_url"`
	NoSandbox bool   `yaml:"no_sandbox"`
}

// CaptureConfig tunes the capture pipeline budgets.
type CaptureConfig struct {
	SubmitWindowMs int `yaml:"submit_window_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
	PollCount      int `yaml:"poll_count"`
	IdleWaitMs     int `yaml:"idle_wait_ms"`
	SettleDelayMs  int `yaml:"settle_delay_ms"`
	GraceDelayMs   int `yaml:"grace_delay_ms"`
	// BudgetMs bounds one whole request, passive phase plus fallback.
	BudgetMs int `yaml:"budget_ms"`
}

func (c *Config) defaults() {
	if c.Port == "" {
		c.Port = "3000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SaveDir == "" {
		c.SaveDir = "captures"
	}
	if c.Capture.SubmitWindowMs <= 0 {
		c.Capture.SubmitWindowMs = 30000
	}
	if c.Capture.PollIntervalMs <= 0 {
		c.Capture.PollIntervalMs = 500
	}
	if c.Capture.PollCount <= 0 {
		c.Capture.PollCount = 80
	}
	if c.Capture.IdleWaitMs <= 0 {
		c.Capture.IdleWaitMs = 20000
	}
	if c.Capture.SettleDelayMs <= 0 {
		c.Capture.SettleDelayMs = 3000
	}
	if c.Capture.GraceDelayMs <= 0 {
		c.Capture.GraceDelayMs = 2000
	}
	if c.Capture.BudgetMs <= 0 {
		c.Capture.BudgetMs = 180000
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.defaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SaveDir, "SAVE_PDF_DIR")
	setString(&c.CaptureLogDB, "CAPTURE_LOG_DB")
	setString(&c.Browser.RemoteURL, "BROWSER_REMOTE_URL")
	setBool(&c.SavePDFFiles, "SAVE_PDF_FILES")
	setBool(&c.Browser.NoSandbox, "BROWSER_NO_SANDBOX")
	setInt(&c.Capture.BudgetMs, "CAPTURE_BUDGET_MS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
