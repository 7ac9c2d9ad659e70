package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Output   OutputConfig   `yaml:"output"`
	Journal  JournalConfig  `yaml:"journal"`
	Auth     AuthConfig     `yaml:"auth"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// SubmitRate is the number of submissions allowed per second; 0 disables the limit.
	SubmitRate  float64 `yaml:"submit_rate"`
	SubmitBurst int     `yaml:"submit_burst"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
	// Backend is "file" or "network".
	Backend     string        `yaml:"backend"`
	PrinterAddr string        `yaml:"printer_addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// HealthInterval is how often the network printer status is polled.
	HealthInterval time.Duration `yaml:"health_interval"`
	// Format is "raw" or "tspl"; only the network backend uses it.
	Format string      `yaml:"format"`
	Label  LabelConfig `yaml:"label"`
}

type LabelConfig struct {
	WidthMM  float64 `yaml:"width_mm"`
	HeightMM float64 `yaml:"height_mm"`
	GapMM    float64 `yaml:"gap_mm"`
	DPI      int     `yaml:"dpi"`
}

type WebhooksConfig struct {
	Endpoints  []WebhookEndpoint `yaml:"endpoints"`
	Timeout    time.Duration     `yaml:"timeout"`
	RetryCount int               `yaml:"retry_count"`
	RetryDelay time.Duration     `yaml:"retry_delay"`
	Workers    int               `yaml:"workers"`
	QueueSize  int               `yaml:"queue_size"`
}

type WebhookEndpoint struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	// Retention bounds how long journaled events are kept; 0 keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PasswordHash string        `yaml:"password_hash"`
	Secret       string        `yaml:"secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var validWebhookEvents = map[string]bool{
	"job_started":   true,
	"job_completed": true,
	"job_failed":    true,
	"job_canceled":  true,
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			SubmitRate:   0,
			SubmitBurst:  10,
		},
		Output: OutputConfig{
			Dir:            "out",
			Backend:        "file",
			DialTimeout:    5 * time.Second,
			HealthInterval: 30 * time.Second,
			Format:         "raw",
			Label: LabelConfig{
				WidthMM:  100,
				HeightMM: 150,
				GapMM:    3,
				DPI:      203,
			},
		},
		Journal: JournalConfig{
			Enabled:       false,
			Path:          "./data/printpipe.db",
			FlushInterval: 5 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:  false,
			TokenTTL: 24 * time.Hour,
		},
		Webhooks: WebhooksConfig{
			Timeout:    10 * time.Second,
			RetryCount: 3,
			RetryDelay: 5 * time.Second,
			Workers:    2,
			QueueSize:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return defaults()
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides fields with any PRINTPIPE_* variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PRINTPIPE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTPIPE_SUBMIT_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.SubmitRate = rate
		}
	}

	if v := os.Getenv("PRINTPIPE_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}

	if v := os.Getenv("PRINTPIPE_PRINTER_ADDR"); v != "" {
		c.Output.Backend = "network"
		c.Output.PrinterAddr = v
	}

	if v := os.Getenv("PRINTPIPE_WEBHOOK_URL"); v != "" {
		c.Webhooks.Endpoints = append(c.Webhooks.Endpoints, WebhookEndpoint{
			URL:    v,
			Secret: os.Getenv("PRINTPIPE_WEBHOOK_SECRET"),
		})
	}

	if v := os.Getenv("PRINTPIPE_JOURNAL_PATH"); v != "" {
		c.Journal.Enabled = true
		c.Journal.Path = v
	}

	if v := os.Getenv("PRINTPIPE_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}

	if v := os.Getenv("PRINTPIPE_AUTH_PASSWORD_HASH"); v != "" {
		c.Auth.Enabled = true
		c.Auth.PasswordHash = v
	}

	if v := os.Getenv("PRINTPIPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("PRINTPIPE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Server.SubmitRate < 0 {
		return fmt.Errorf("submit rate must be non-negative")
	}

	if c.Server.SubmitRate > 0 && c.Server.SubmitBurst < 1 {
		return fmt.Errorf("submit burst must be at least 1 when a submit rate is set")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output directory is required")
	}

	switch c.Output.Backend {
	case "file":
	case "network":
		if c.Output.PrinterAddr == "" {
			return fmt.Errorf("printer address is required for the network backend")
		}
		if _, _, err := net.SplitHostPort(c.Output.PrinterAddr); err != nil {
			return fmt.Errorf("invalid printer address %q: %w", c.Output.PrinterAddr, err)
		}
	default:
		return fmt.Errorf("invalid output backend: %s (valid: file, network)", c.Output.Backend)
	}

	switch c.Output.Format {
	case "raw":
	case "tspl":
		if c.Output.Label.WidthMM <= 0 || c.Output.Label.HeightMM <= 0 {
			return fmt.Errorf("label width and height must be positive")
		}
		if c.Output.Label.DPI <= 0 {
			return fmt.Errorf("label dpi must be positive")
		}
	default:
		return fmt.Errorf("invalid output format: %s (valid: raw, tspl)", c.Output.Format)
	}

	for i, ep := range c.Webhooks.Endpoints {
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %d: invalid url %q", i, ep.URL)
		}
		for _, ev := range ep.Events {
			if !validWebhookEvents[ev] {
				return fmt.Errorf("webhook %d: unknown event %q", i, ev)
			}
		}
	}

	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			return fmt.Errorf("journal path is required when the journal is enabled")
		}
		if c.Journal.FlushInterval <= 0 {
			return fmt.Errorf("journal flush interval must be positive")
		}
		if c.Journal.Retention < 0 {
			return fmt.Errorf("journal retention must be non-negative")
		}
	}

	if c.Auth.Enabled {
		if c.Auth.PasswordHash == "" {
			return fmt.Errorf("auth password hash is required when auth is enabled")
		}
		if len(c.Auth.Secret) < 16 {
			return fmt.Errorf("auth secret must be at least 16 characters")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth token ttl must be positive")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
